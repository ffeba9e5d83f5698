// Package observability provides structured logging, Prometheus metrics, and health checks.
//
// # Overview
//
// This package centralizes observability infrastructure for the authorization
// engines and the HTTP daemon: JSON logging, decision/quota/snapshot metrics,
// and backend health checks.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("engine started")
//
// Context-aware logging:
//
//	logger.WithField("grant_id", grantID).Warn("grant expired")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AccessChecksTotal.WithLabelValues("agent", "allow").Inc()
//
// Snapshot metrics:
//
//	metrics.SnapshotWritesTotal.WithLabelValues("acl", "ok").Inc()
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
package observability
