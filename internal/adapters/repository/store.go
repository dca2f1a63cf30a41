// Package repository persists rep events. The backend is chosen from a DSN:
// an empty DSN keeps events in memory, a postgres:// or postgresql:// URL
// uses PostgreSQL, and anything else is treated as a SQLite path.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/pkg/logger"
	"github.com/okian/repsense/pkg/metrics"
)

// Store provides read/write access to stored rep events.
type Store interface {
	// Append stores ev. Appending an event id twice is a no-op.
	Append(ctx context.Context, ev model.RepEvent) error

	// History returns the events of a session ordered by time, then count.
	History(ctx context.Context, sessionID string) ([]model.RepEvent, error)

	// Totals returns the number of reps stored per class for a session.
	Totals(ctx context.Context, sessionID string) (map[string]int, error)

	Close() error
}

// Open returns the Store selected by dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (Store, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("repository")
	}

	var (
		s       Store
		backend string
		err     error
	)
	switch {
	case dsn == "":
		backend = "memory"
		s = NewMemoryStore()
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		backend = "postgres"
		s, err = NewPostgresStore(ctx, dsn)
	default:
		backend = "sqlite"
		s, err = NewSQLiteStore(ctx, dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenStore, backend, err)
	}

	o.logger.Info(ctx, "rep event store opened", logger.String("backend", backend))
	return &instrumented{Store: s}, nil
}

// instrumented records latency and error metrics around a Store.
type instrumented struct {
	Store
}

func (s *instrumented) Append(ctx context.Context, ev model.RepEvent) error {
	start := time.Now()
	err := s.Store.Append(ctx, ev)
	metrics.RecordStoreAppendLatency(sinceMs(start))
	if err != nil {
		metrics.RecordErrorByComponent("store", "append_failed")
	}
	return err
}

func (s *instrumented) History(ctx context.Context, sessionID string) ([]model.RepEvent, error) {
	start := time.Now()
	events, err := s.Store.History(ctx, sessionID)
	metrics.RecordStoreQueryLatency(sinceMs(start))
	if err != nil {
		metrics.RecordErrorByComponent("store", "query_failed")
	}
	return events, err
}

func (s *instrumented) Totals(ctx context.Context, sessionID string) (map[string]int, error) {
	start := time.Now()
	totals, err := s.Store.Totals(ctx, sessionID)
	metrics.RecordStoreQueryLatency(sinceMs(start))
	if err != nil {
		metrics.RecordErrorByComponent("store", "query_failed")
	}
	return totals, err
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
