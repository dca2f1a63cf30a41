// Package repcount counts exercise repetitions with a two-state hysteresis
// machine over smoothed classifier confidence.
package repcount

import (
	"fmt"
	"time"

	"github.com/okian/repsense/internal/domain/model"
)

// DefaultMinInterval is the minimum time between two counted repetitions.
const DefaultMinInterval = time.Second

// State of a repetition counter.
type State int

const (
	// Rest means the pose has not been entered.
	Rest State = iota
	// Entered means confidence rose above the enter threshold and the counter
	// is waiting for it to fall below the exit threshold.
	Entered
)

func (s State) String() string {
	switch s {
	case Rest:
		return "rest"
	case Entered:
		return "entered"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transition describes what one Add call did.
type Transition int

const (
	// NoChange means the state did not change.
	NoChange Transition = iota
	// PoseEntered means Rest -> Entered.
	PoseEntered
	// RepCounted means Entered -> Rest with the count incremented.
	RepCounted
	// RepSuppressed means Entered -> Rest inside the minimum interval; the
	// repetition was not counted.
	RepSuppressed
)

func (t Transition) String() string {
	switch t {
	case NoChange:
		return "none"
	case PoseEntered:
		return "entered"
	case RepCounted:
		return "counted"
	case RepSuppressed:
		return "suppressed"
	default:
		return fmt.Sprintf("transition(%d)", int(t))
	}
}

// Option applies a configuration option to a Counter.
type Option func(*Counter)

// WithMinInterval sets the minimum time between counted repetitions.
func WithMinInterval(d time.Duration) Option {
	return func(c *Counter) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// Counter counts repetitions for a single class. Not safe for concurrent use.
type Counter struct {
	className   string
	thresholds  Thresholds
	minInterval time.Duration

	numRepeats int
	state      State
	lastRep    time.Time
}

// New creates a counter for className.
func New(className string, th Thresholds, opts ...Option) (*Counter, error) {
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("counter %s: %w", className, err)
	}
	c := &Counter{
		className:   className,
		thresholds:  th,
		minInterval: DefaultMinInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Add feeds the smoothed confidences observed at time at and returns the
// resulting transition.
func (c *Counter) Add(at time.Time, smoothed model.ConfidenceMap) Transition {
	confidence := smoothed.Get(c.className)

	if c.state == Rest {
		if confidence > c.thresholds.Enter {
			c.state = Entered
			return PoseEntered
		}
		return NoChange
	}

	if confidence >= c.thresholds.Exit {
		return NoChange
	}

	c.state = Rest
	if !c.lastRep.IsZero() && at.Sub(c.lastRep) < c.minInterval {
		return RepSuppressed
	}
	c.numRepeats++
	c.lastRep = at
	return RepCounted
}

// ClassName returns the class this counter tracks.
func (c *Counter) ClassName() string { return c.className }

// NumRepeats returns the number of counted repetitions.
func (c *Counter) NumRepeats() int { return c.numRepeats }

// State returns the current state.
func (c *Counter) State() State { return c.state }

// Thresholds returns the enter/exit pair in use.
func (c *Counter) Thresholds() Thresholds { return c.thresholds }

// LastRep returns the time of the last counted repetition, zero if none.
func (c *Counter) LastRep() time.Time { return c.lastRep }

// Reset restores the initial state.
func (c *Counter) Reset() {
	c.numRepeats = 0
	c.state = Rest
	c.lastRep = time.Time{}
}
