// Package session turns a stream of landmark frames and raw classifier
// confidences into repetition counts and display labels.
//
// A Controller owns a smoother, a validator set and one repetition counter
// per tracked class. It processes one frame at a time; calling Process or
// Reset concurrently on the same Controller is a programming error and
// panics.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/internal/domain/repcount"
	"github.com/okian/repsense/internal/domain/smoothing"
	"github.com/okian/repsense/internal/domain/validate"
	"github.com/okian/repsense/pkg/logger"
	"github.com/okian/repsense/pkg/metrics"
)

// Session defaults.
const (
	InitialLabel              = "Exercise: 0 reps"
	DefaultMinValidPoseFrames = 3
	// DefaultConfidenceRange converts raw k-NN scores (votes out of the top
	// K neighbours) to a value near [0,1] for display.
	DefaultConfidenceRange = 10.0
)

// DefaultCounterClasses is the fixed order in which counters are advanced.
// When two counters would increment on the same frame, the earlier one wins.
var DefaultCounterClasses = []string{
	validate.PushupsClass,
	validate.SquatsClass,
	validate.FrontRaiseClass,
	validate.HipThrustClass,
	validate.WindmillLeftClass,
	validate.WindmillRightClass,
}

// RepHandler receives an event every time a counter increments.
type RepHandler func(ctx context.Context, ev model.RepEvent)

// ClassCount is the per-class view of a counter.
type ClassCount struct {
	Class string `json:"class"`
	Reps  int    `json:"reps"`
	State string `json:"state"`
}

// Stats is a snapshot of controller state.
type Stats struct {
	ID         string       `json:"id"`
	StreamMode bool         `json:"stream_mode"`
	Frames     int64        `json:"frames"`
	Streak     int          `json:"valid_pose_streak"`
	Label      string       `json:"label"`
	Counts     []ClassCount `json:"counts"`
}

// Controller is the per-session frame processor.
type Controller struct {
	id                 string
	streamMode         bool
	minValidPoseFrames int
	confidenceRange    float64
	minInterval        time.Duration
	counterClasses     []string
	thresholds         repcount.Table
	smoothingOpts      []smoothing.Option
	now                func() time.Time
	onRep              RepHandler
	logger             logger.Logger

	smoother   *smoothing.EMA
	validators *validate.Set
	counters   []*repcount.Counter

	streak     int
	frames     int64
	lastLabel  string
	lastResult []string

	busy atomic.Bool
}

// New builds a Controller. It fails only when the threshold configuration is
// invalid.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		id:                 uuid.NewString(),
		streamMode:         true,
		minValidPoseFrames: DefaultMinValidPoseFrames,
		confidenceRange:    DefaultConfidenceRange,
		minInterval:        repcount.DefaultMinInterval,
		counterClasses:     DefaultCounterClasses,
		thresholds:         repcount.DefaultTable(),
		now:                time.Now,
		lastLabel:          InitialLabel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("session")
	}
	if c.validators == nil {
		c.validators = validate.DefaultSet()
	}

	if c.streamMode {
		c.smoother = smoothing.New(c.smoothingOpts...)
		c.counters = make([]*repcount.Counter, 0, len(c.counterClasses))
		for _, class := range c.counterClasses {
			counter, err := repcount.New(class, c.thresholds.For(class), repcount.WithMinInterval(c.minInterval))
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
			c.counters = append(c.counters, counter)
		}
	}
	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// StreamMode reports whether the controller counts repetitions.
func (c *Controller) StreamMode() bool { return c.streamMode }

// Process runs one frame through smoothing, validation and counting and
// returns up to two display labels: the last repetition label and, when a
// pose is present, the frame's top class with its normalized confidence.
func (c *Controller) Process(ctx context.Context, f model.Frame) []string {
	c.acquire()
	defer c.release()

	start := time.Now()
	defer func() {
		metrics.RecordFrameLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	c.frames++
	metrics.RecordFrameProcessed(c.streamMode)

	result := make([]string, 0, 2)
	if c.streamMode {
		labels, done := c.count(ctx, f)
		result = append(result, labels...)
		if done {
			c.lastResult = result
			return c.Last()
		}
	}

	if !f.Landmarks.Empty() {
		if class, raw, ok := f.Confidences.Top(); ok {
			result = append(result, fmt.Sprintf("%s : %.2f confidence", class, raw/c.confidenceRange))
		}
	}

	c.lastResult = result
	c.logger.Debug(ctx, "frame processed", logger.Any("result", result))
	return c.Last()
}

// count handles the stream-mode part of Process. done is true when the
// frame ends without a top-class label.
func (c *Controller) count(ctx context.Context, f model.Frame) (labels []string, done bool) {
	at := f.Timestamp
	if at.IsZero() {
		at = c.now()
	}

	// Smoothing continues across frames without a pose.
	smoothed := c.smoother.SmoothAt(at, f.Confidences)

	if f.Landmarks.Empty() {
		c.streak = 0
		metrics.RecordFrameWithoutPose()
		c.logger.Debug(ctx, "no landmarks; keeping last label", logger.String("label", c.lastLabel))
		return []string{c.lastLabel}, true
	}

	results := c.validators.Results(f.Landmarks, smoothed)
	for _, r := range results {
		metrics.RecordValidatorResult(r.Name, r.Valid)
	}
	if validate.AnyValid(results) {
		c.streak++
	} else {
		c.streak = 0
	}

	if c.streak < c.minValidPoseFrames {
		c.logger.Debug(ctx, "not enough valid pose frames",
			logger.Int("streak", c.streak),
			logger.Int("required", c.minValidPoseFrames),
		)
		return []string{c.lastLabel}, true
	}

	for _, counter := range c.counters {
		switch counter.Add(at, smoothed) {
		case repcount.RepCounted:
			c.lastLabel = fmt.Sprintf("%s : %d reps", counter.ClassName(), counter.NumRepeats())
			metrics.RecordRepCounted(counter.ClassName())
			c.logger.Info(ctx, "repetition counted",
				logger.String("id", c.id),
				logger.String("class", counter.ClassName()),
				logger.Int("reps", counter.NumRepeats()),
			)
			c.emit(ctx, counter, at)
			return []string{c.lastLabel}, false
		case repcount.RepSuppressed:
			metrics.RecordRepSuppressed(counter.ClassName())
			c.logger.Debug(ctx, "repetition inside minimum interval; ignored",
				logger.String("class", counter.ClassName()),
				logger.Duration("since_last", at.Sub(counter.LastRep())),
			)
		case repcount.PoseEntered:
			c.logger.Debug(ctx, "pose entered", logger.String("class", counter.ClassName()))
		}
	}
	return []string{c.lastLabel}, false
}

func (c *Controller) emit(ctx context.Context, counter *repcount.Counter, at time.Time) {
	if c.onRep == nil {
		return
	}
	c.onRep(ctx, model.RepEvent{
		ID:        uuid.NewString(),
		SessionID: c.id,
		ClassName: counter.ClassName(),
		Count:     counter.NumRepeats(),
		Timestamp: at,
	})
}

// Reset zeroes every counter, the valid-pose streak and the label, and
// clears the smoothing window.
func (c *Controller) Reset(ctx context.Context) {
	c.acquire()
	defer c.release()

	for _, counter := range c.counters {
		counter.Reset()
	}
	if c.smoother != nil {
		c.smoother.Reset()
	}
	c.streak = 0
	c.lastLabel = InitialLabel
	c.lastResult = nil
	c.logger.Info(ctx, "session reset", logger.String("id", c.id))
}

// Last returns a copy of the labels produced by the most recent frame.
func (c *Controller) Last() []string {
	out := make([]string, len(c.lastResult))
	copy(out, c.lastResult)
	return out
}

// Label returns the last repetition label.
func (c *Controller) Label() string { return c.lastLabel }

// Streak returns the current number of consecutive valid pose frames.
func (c *Controller) Streak() int { return c.streak }

// Counts returns per-class counts in counter order.
func (c *Controller) Counts() []ClassCount {
	out := make([]ClassCount, len(c.counters))
	for i, counter := range c.counters {
		out[i] = ClassCount{
			Class: counter.ClassName(),
			Reps:  counter.NumRepeats(),
			State: counter.State().String(),
		}
	}
	return out
}

// Stats returns a snapshot of the controller.
func (c *Controller) Stats() Stats {
	return Stats{
		ID:         c.id,
		StreamMode: c.streamMode,
		Frames:     c.frames,
		Streak:     c.streak,
		Label:      c.lastLabel,
		Counts:     c.Counts(),
	}
}

func (c *Controller) acquire() {
	if !c.busy.CompareAndSwap(false, true) {
		panic("session: concurrent use of Controller " + c.id)
	}
}

func (c *Controller) release() { c.busy.Store(false) }
