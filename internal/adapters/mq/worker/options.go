package worker

import (
	"time"

	"github.com/okian/repsense/pkg/logger"
)

// Option configures an InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName names the worker in logs.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets the parent logger; the worker logs under its name.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithAppendTimeout bounds every store write. Zero leaves writes bounded only
// by the worker context.
func WithAppendTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.appendTimeout = d
		}
	}
}
