package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/warden/pkg/acl"
	"github.com/platinummonkey/warden/pkg/api"
	"github.com/platinummonkey/warden/pkg/authz"
	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/delegation"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/plans"
	"github.com/platinummonkey/warden/pkg/quota"
	"github.com/platinummonkey/warden/pkg/storage"
)

var (
	configPath      = flag.String("config", getEnv("WARDEN_CONFIG", ""), "Path to YAML config file (optional; env vars apply on top)")
	directoryPath   = flag.String("directory", getEnv("WARDEN_DIRECTORY", ""), "Path to the subject/team directory file (optional)")
	gaugeSchedule   = flag.String("gauge-schedule", "@every 1m", "Cron schedule for metric gauge refresh")
	cleanupSchedule = flag.String("cleanup-schedule", "30 0 * * *", "Cron schedule for expired grant/subscription cleanup (default: 00:30 UTC)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := setupLogger(cfg.Observability.LogLevel.String())
	engineLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	baseStore, err := storage.NewStore(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize snapshot storage: %v", err)
	}
	defer baseStore.Close()
	log.Infof("Snapshot storage initialized (%s)", cfg.Storage.Type)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	aclEngine, err := acl.NewEngine(storage.WithMetrics(baseStore, "acl", metrics), engineLogger)
	if err != nil {
		log.Fatalf("Failed to start ACL engine: %v", err)
	}
	delegationEngine, err := delegation.NewEngine(storage.WithMetrics(baseStore, "delegation", metrics), engineLogger)
	if err != nil {
		log.Fatalf("Failed to start delegation engine: %v", err)
	}
	quotaEngine, err := quota.NewEngine(storage.WithMetrics(baseStore, "quota", metrics), engineLogger)
	if err != nil {
		log.Fatalf("Failed to start quota engine: %v", err)
	}
	planEngine, err := plans.NewEngine(storage.WithMetrics(baseStore, "plans", metrics), engineLogger)
	if err != nil {
		log.Fatalf("Failed to start plan engine: %v", err)
	}

	identity, teams, err := loadDirectory(*directoryPath)
	if err != nil {
		log.Fatalf("Failed to load subject directory: %v", err)
	}

	svc := authz.NewService(authz.Config{
		Identity:   identity,
		Teams:      teams,
		ACL:        aclEngine,
		Delegation: delegationEngine,
		Quota:      quotaEngine,
		Plans:      planEngine,
		Logger:     engineLogger,
		Metrics:    metrics,
	})
	svc.Start()
	defer svc.Stop()

	server := api.NewServer(api.Config{
		Authz:      svc,
		ACL:        aclEngine,
		Delegation: delegationEngine,
		Quota:      quotaEngine,
		Plans:      planEngine,
		Logger:     engineLogger,
	})

	c := cron.New()
	if metrics != nil {
		if _, err := c.AddFunc(*gaugeSchedule, svc.RefreshGauges); err != nil {
			log.Fatalf("Failed to schedule gauge refresh: %v", err)
		}
	}
	if _, err := c.AddFunc(*cleanupSchedule, func() {
		grants := delegationEngine.CleanExpiredGrants()
		subscriptions := planEngine.CleanExpiredSubscriptions()
		log.Infof("Cleanup removed %d expired grants, deactivated %d expired subscriptions", grants, subscriptions)
	}); err != nil {
		log.Fatalf("Failed to schedule expired record cleanup: %v", err)
	}
	c.Start()

	var handler http.Handler = server
	if metrics != nil {
		handler = observability.HTTPMetricsMiddleware(metrics)(server)
	}
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux(baseStore, registry, cfg.Observability.MetricsEnabled),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Warden API listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Infof("Health/metrics endpoint listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("API server shutdown: %v", err)
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Health server shutdown: %v", err)
		}
		<-c.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Info("Warden stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFile(path)
	}
	return config.LoadConfig()
}

// healthMux serves the kubernetes probes and, when enabled, the
// prometheus scrape endpoint on the side port.
func healthMux(store storage.Store, registry *prometheus.Registry, metricsEnabled bool) *http.ServeMux {
	var db *sql.DB
	var redisClient *redis.Client
	switch s := store.(type) {
	case *storage.SQLiteStore:
		db = s.DB()
	case *storage.RedisStore:
		redisClient = s.Client()
	}

	checker := observability.NewHealthChecker(db, redisClient)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.Liveness)
	mux.HandleFunc("/readyz", checker.Readiness)
	if metricsEnabled {
		observability.RegisterMetricsEndpoint(mux, registry)
	}
	return mux
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
