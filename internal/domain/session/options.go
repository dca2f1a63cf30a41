package session

import (
	"time"

	"github.com/okian/repsense/internal/domain/repcount"
	"github.com/okian/repsense/internal/domain/smoothing"
	"github.com/okian/repsense/internal/domain/validate"
	"github.com/okian/repsense/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithID sets the session identifier. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.id = id
		}
	}
}

// WithStreamMode selects streaming (counting) or single-shot mode.
func WithStreamMode(stream bool) Option {
	return func(c *Controller) {
		c.streamMode = stream
	}
}

// WithMinValidPoseFrames sets how many consecutive valid frames are needed
// before counters are advanced.
func WithMinValidPoseFrames(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.minValidPoseFrames = n
		}
	}
}

// WithConfidenceRange sets the divisor that maps raw classifier scores to
// the displayed confidence.
func WithConfidenceRange(r float64) Option {
	return func(c *Controller) {
		if r > 0 {
			c.confidenceRange = r
		}
	}
}

// WithMinRepInterval sets the debounce between counted repetitions.
func WithMinRepInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// WithCounterClasses sets the tracked classes and their iteration order.
func WithCounterClasses(classes []string) Option {
	return func(c *Controller) {
		if len(classes) > 0 {
			c.counterClasses = append([]string(nil), classes...)
		}
	}
}

// WithThresholds sets the per-class enter/exit table.
func WithThresholds(t repcount.Table) Option {
	return func(c *Controller) {
		c.thresholds = t
	}
}

// WithSmoothing passes options to the confidence smoother.
func WithSmoothing(opts ...smoothing.Option) Option {
	return func(c *Controller) {
		c.smoothingOpts = append(c.smoothingOpts, opts...)
	}
}

// WithValidators replaces the default validator set.
func WithValidators(s *validate.Set) Option {
	return func(c *Controller) {
		if s != nil {
			c.validators = s
		}
	}
}

// WithRepHandler registers the callback invoked on every counted repetition.
func WithRepHandler(h RepHandler) Option {
	return func(c *Controller) {
		c.onRep = h
	}
}

// WithClock overrides the time source used for frames without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
