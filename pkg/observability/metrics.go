package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization decision metrics
	AccessChecksTotal     *prometheus.CounterVec
	PermissionChecksTotal *prometheus.CounterVec
	FeatureChecksTotal    *prometheus.CounterVec

	// Quota metrics
	QuotaChecksTotal *prometheus.CounterVec
	QuotaResetsTotal *prometheus.CounterVec
	QuotaSweepsTotal prometheus.Counter

	// Snapshot persistence metrics
	SnapshotWritesTotal  *prometheus.CounterVec
	SnapshotWriteSeconds *prometheus.HistogramVec
	SnapshotErrorsTotal  *prometheus.CounterVec

	// State size gauges
	ACLEntriesTotal          prometheus.Gauge
	DelegationGrantsActive   prometheus.Gauge
	SubscriptionsActiveTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_access_checks_total",
				Help: "Total number of resource access checks",
			},
			[]string{"resource_type", "result"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"source", "result"},
		),
		FeatureChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_feature_checks_total",
				Help: "Total number of plan feature checks",
			},
			[]string{"result"},
		),

		QuotaChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_quota_checks_total",
				Help: "Total number of quota checks",
			},
			[]string{"resource_type", "result"},
		),
		QuotaResetsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_quota_resets_total",
				Help: "Total number of quota period resets",
			},
			[]string{"resource_type", "trigger"},
		),
		QuotaSweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_quota_sweeps_total",
				Help: "Total number of background quota sweeps",
			},
		),

		SnapshotWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_snapshot_writes_total",
				Help: "Total number of state snapshot writes",
			},
			[]string{"engine", "status"},
		),
		SnapshotWriteSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_snapshot_write_duration_seconds",
				Help:    "State snapshot write duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		SnapshotErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_snapshot_errors_total",
				Help: "Total number of snapshot persistence errors",
			},
			[]string{"engine"},
		),

		ACLEntriesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_acl_entries_total",
				Help: "Current number of resource ACL entries",
			},
		),
		DelegationGrantsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_delegation_grants_active",
				Help: "Current number of active delegation grants",
			},
		),
		SubscriptionsActiveTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_subscriptions_active_total",
				Help: "Current number of active plan subscriptions",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessChecksTotal,
		m.PermissionChecksTotal,
		m.FeatureChecksTotal,
		m.QuotaChecksTotal,
		m.QuotaResetsTotal,
		m.QuotaSweepsTotal,
		m.SnapshotWritesTotal,
		m.SnapshotWriteSeconds,
		m.SnapshotErrorsTotal,
		m.ACLEntriesTotal,
		m.DelegationGrantsActive,
		m.SubscriptionsActiveTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
