package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML file, with environment
// variables taking precedence over file values
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	file.applyTo(cfg)
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:       observability.InfoLevel,
			MetricsEnabled: true,
		},
	}
}

// fileConfig is the YAML schema; zero values leave the defaults alone
type fileConfig struct {
	Server struct {
		Host            string        `yaml:"host"`
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		HealthPort      string        `yaml:"health_port"`
	} `yaml:"server"`
	Storage struct {
		Type           string        `yaml:"type"`
		FilesystemRoot string        `yaml:"filesystem_root"`
		SQLitePath     string        `yaml:"sqlite_path"`
		RedisAddr      string        `yaml:"redis_addr"`
		RedisPassword  string        `yaml:"redis_password"`
		RedisDB        int           `yaml:"redis_db"`
		RedisKeyPrefix string        `yaml:"redis_key_prefix"`
		RedisTimeout   time.Duration `yaml:"redis_timeout"`
	} `yaml:"storage"`
	Observability struct {
		LogLevel       string `yaml:"log_level"`
		MetricsEnabled *bool  `yaml:"metrics_enabled"`
	} `yaml:"observability"`
}

func (f *fileConfig) applyTo(cfg *Config) {
	if f.Server.Host != "" {
		cfg.Server.Host = f.Server.Host
	}
	if f.Server.Port != "" {
		cfg.Server.Port = f.Server.Port
	}
	if f.Server.ReadTimeout > 0 {
		cfg.Server.ReadTimeout = f.Server.ReadTimeout
	}
	if f.Server.WriteTimeout > 0 {
		cfg.Server.WriteTimeout = f.Server.WriteTimeout
	}
	if f.Server.IdleTimeout > 0 {
		cfg.Server.IdleTimeout = f.Server.IdleTimeout
	}
	if f.Server.ShutdownTimeout > 0 {
		cfg.Server.ShutdownTimeout = f.Server.ShutdownTimeout
	}
	if f.Server.HealthPort != "" {
		cfg.Server.HealthPort = f.Server.HealthPort
	}

	if f.Storage.Type != "" {
		cfg.Storage.Type = f.Storage.Type
	}
	if f.Storage.FilesystemRoot != "" {
		cfg.Storage.FilesystemRoot = f.Storage.FilesystemRoot
	}
	if f.Storage.SQLitePath != "" {
		cfg.Storage.SQLitePath = f.Storage.SQLitePath
	}
	if f.Storage.RedisAddr != "" {
		cfg.Storage.RedisAddr = f.Storage.RedisAddr
	}
	if f.Storage.RedisPassword != "" {
		cfg.Storage.RedisPassword = f.Storage.RedisPassword
	}
	if f.Storage.RedisDB > 0 {
		cfg.Storage.RedisDB = f.Storage.RedisDB
	}
	if f.Storage.RedisKeyPrefix != "" {
		cfg.Storage.RedisKeyPrefix = f.Storage.RedisKeyPrefix
	}
	if f.Storage.RedisTimeout > 0 {
		cfg.Storage.RedisTimeout = f.Storage.RedisTimeout
	}

	if f.Observability.LogLevel != "" {
		cfg.Observability.LogLevel = observability.ParseLogLevel(f.Observability.LogLevel)
	}
	if f.Observability.MetricsEnabled != nil {
		cfg.Observability.MetricsEnabled = *f.Observability.MetricsEnabled
	}
}

// applyEnv overlays environment variables onto the configuration
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("WARDEN_HOST", c.Server.Host)
	c.Server.Port = getEnv("WARDEN_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("WARDEN_HEALTH_PORT", c.Server.HealthPort)

	c.Storage.Type = getEnv("WARDEN_STORAGE_TYPE", c.Storage.Type)
	c.Storage.FilesystemRoot = getEnv("WARDEN_FILESYSTEM_ROOT", c.Storage.FilesystemRoot)
	c.Storage.SQLitePath = getEnv("WARDEN_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisAddr = getEnv("WARDEN_REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("WARDEN_REDIS_PASSWORD", c.Storage.RedisPassword)
	if db := getEnvInt("WARDEN_REDIS_DB", -1); db >= 0 {
		c.Storage.RedisDB = db
	}
	c.Storage.RedisKeyPrefix = getEnv("WARDEN_REDIS_KEY_PREFIX", c.Storage.RedisKeyPrefix)
	c.Storage.RedisTimeout = getEnvDuration("WARDEN_REDIS_TIMEOUT", c.Storage.RedisTimeout)

	if level := getEnv("WARDEN_LOG_LEVEL", ""); level != "" {
		c.Observability.LogLevel = observability.ParseLogLevel(level)
	}
	c.Observability.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem, sqlite, or redis)", c.Storage.Type)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
