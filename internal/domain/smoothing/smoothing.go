// Package smoothing implements exponential moving-average smoothing of
// per-class classifier confidences over a sliding window of frames.
package smoothing

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/repsense/internal/domain/model"
)

// Default smoothing configuration constants.
const (
	DefaultWindowSize = 10
	DefaultAlpha      = 0.2
)

// Option applies a configuration option to the EMA smoother.
type Option func(*EMA)

// WithWindowSize sets how many recent frames contribute to the average.
func WithWindowSize(size int) Option {
	return func(e *EMA) {
		if size > 0 {
			e.windowSize = size
		}
	}
}

// WithAlpha sets the smoothing factor. Each older frame is weighted (1-alpha)
// times the next newer one, so alpha=1 keeps only the newest frame.
func WithAlpha(alpha float64) Option {
	return func(e *EMA) {
		if alpha > 0 && alpha <= 1 {
			e.alpha = alpha
		}
	}
}

// WithResetGap clears the window whenever two inputs are further apart than
// gap. Zero disables the reset.
func WithResetGap(gap time.Duration) Option {
	return func(e *EMA) {
		if gap >= 0 {
			e.resetGap = gap
		}
	}
}

// WithClock overrides the time source used by Smooth.
func WithClock(now func() time.Time) Option {
	return func(e *EMA) {
		if now != nil {
			e.now = now
		}
	}
}

// EMA keeps the most recent raw confidence maps and derives a smoothed map
// from them. It is not safe for concurrent use.
type EMA struct {
	windowSize int
	alpha      float64
	resetGap   time.Duration
	now        func() time.Time

	// window is ordered newest first.
	window    []model.ConfidenceMap
	lastInput time.Time
}

// New creates an EMA smoother with configuration options.
func New(opts ...Option) *EMA {
	e := &EMA{
		windowSize: DefaultWindowSize,
		alpha:      DefaultAlpha,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.window = make([]model.ConfidenceMap, 0, e.windowSize)
	return e
}

// Smooth adds raw to the window and returns the smoothed confidences.
func (e *EMA) Smooth(raw model.ConfidenceMap) model.ConfidenceMap {
	return e.SmoothAt(e.now(), raw)
}

// SmoothAt is Smooth with an explicit input time.
func (e *EMA) SmoothAt(at time.Time, raw model.ConfidenceMap) model.ConfidenceMap {
	if e.resetGap > 0 && !e.lastInput.IsZero() && at.Sub(e.lastInput) > e.resetGap {
		e.window = e.window[:0]
	}
	e.lastInput = at

	if len(e.window) == e.windowSize {
		e.window = e.window[:len(e.window)-1]
	}
	e.window = append(e.window, nil)
	copy(e.window[1:], e.window)
	e.window[0] = raw.Clone()

	weights := make([]float64, len(e.window))
	factor := 1.0
	for i := range weights {
		weights[i] = factor
		factor *= 1 - e.alpha
	}

	values := make([]float64, len(e.window))
	smoothed := make(model.ConfidenceMap)
	for _, class := range e.classes() {
		for i, m := range e.window {
			values[i] = m.Get(class)
		}
		smoothed[class] = stat.Mean(values, weights)
	}
	return smoothed
}

// Len returns the number of frames currently in the window.
func (e *EMA) Len() int { return len(e.window) }

// Reset empties the window.
func (e *EMA) Reset() {
	e.window = e.window[:0]
	e.lastInput = time.Time{}
}

func (e *EMA) classes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range e.window {
		for c := range m {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}
