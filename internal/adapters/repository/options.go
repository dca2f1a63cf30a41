package repository

import "github.com/okian/repsense/pkg/logger"

type options struct {
	logger logger.Logger
}

// Option applies a configuration option to Open.
type Option func(*options)

// WithLogger sets the logger used while opening the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
