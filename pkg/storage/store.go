package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store persists engine state snapshots keyed by table name. Each engine
// serializes its full in-memory table to one document and rewrites it on
// every mutation; Load returns (nil, nil) when no snapshot exists yet.
type Store interface {
	Load(ctx context.Context, table string) ([]byte, error)
	Save(ctx context.Context, table string, data []byte) error
	Close() error
}

// Config for the snapshot backend
type Config struct {
	Type string // "filesystem", "sqlite", "redis"

	// Filesystem config
	FilesystemRoot string

	// SQLite config
	SQLitePath string

	// Redis config
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	RedisTimeout   time.Duration
}

// DefaultConfig returns a filesystem-backed configuration
func DefaultConfig() Config {
	return Config{
		Type:           "filesystem",
		FilesystemRoot: "./data/warden",
		RedisKeyPrefix: "warden:",
		RedisTimeout:   5 * time.Second,
	}
}

// NewStore creates the snapshot store described by the config
func NewStore(cfg Config) (Store, error) {
	switch cfg.Type {
	case "", "filesystem":
		return NewFilesystemStore(cfg.FilesystemRoot)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.RedisTimeout,
		})
		return NewRedisStore(client, cfg.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
