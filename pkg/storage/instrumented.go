package storage

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/observability"
)

// instrumentedStore wraps a Store and records snapshot write metrics
// under an engine label.
type instrumentedStore struct {
	inner   Store
	engine  string
	metrics *observability.Metrics
}

// WithMetrics returns a Store that records write counts, durations, and
// errors for the named engine. A nil metrics returns the store
// unwrapped.
func WithMetrics(s Store, engine string, metrics *observability.Metrics) Store {
	if metrics == nil {
		return s
	}
	return &instrumentedStore{inner: s, engine: engine, metrics: metrics}
}

func (s *instrumentedStore) Load(ctx context.Context, table string) ([]byte, error) {
	return s.inner.Load(ctx, table)
}

func (s *instrumentedStore) Save(ctx context.Context, table string, data []byte) error {
	start := time.Now()
	err := s.inner.Save(ctx, table, data)
	s.metrics.SnapshotWriteSeconds.WithLabelValues(s.engine).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.SnapshotErrorsTotal.WithLabelValues(s.engine).Inc()
	}
	s.metrics.SnapshotWritesTotal.WithLabelValues(s.engine, status).Inc()
	return err
}

func (s *instrumentedStore) Close() error {
	return s.inner.Close()
}
