// Package replay runs recorded frames through a local session and reports
// the labels it produces. Input is JSON lines, one model.Frame per line.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	service "github.com/okian/repsense/internal/app"
	"github.com/okian/repsense/internal/config"
	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/internal/domain/session"
	"github.com/okian/repsense/pkg/logger"
)

const (
	// maxLineBytes bounds one input line.
	maxLineBytes = 1 << 20

	// DefaultFrameInterval spaces frames that carry no timestamp, matching a 30 fps camera.
	DefaultFrameInterval = time.Second / 30
)

// Options control a replay run.
type Options struct {
	SingleShot bool // report only the top class per frame
	Quiet      bool // print only frames whose rep label changed
	// FrameInterval is the time assumed between frames without a timestamp.
	// Zero means DefaultFrameInterval.
	FrameInterval time.Duration
}

// frameClock stamps frames that arrive without a timestamp. Replays run much
// faster than the recording, so the wall clock would squeeze every rep into
// the minimum rep interval.
type frameClock struct {
	interval time.Duration
	last     time.Time
}

func newFrameClock(interval time.Duration, start time.Time) *frameClock {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &frameClock{interval: interval, last: start}
}

// stamp sets a missing timestamp to one interval after the previous frame.
func (c *frameClock) stamp(f *model.Frame) {
	if f.Timestamp.IsZero() {
		c.last = c.last.Add(c.interval)
		f.Timestamp = c.last
		return
	}
	c.last = f.Timestamp
}

// Stats summarises a replay run.
type Stats struct {
	Frames    int
	Skipped   int
	Reps      int
	Label     string
	Counts    []session.ClassCount
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Run replays every frame read from in and writes labels and a final summary
// to out. Malformed lines are skipped with a warning.
func Run(ctx context.Context, cfg *config.Config, opts Options, in io.Reader, out io.Writer) (*Stats, error) {
	log := logger.Get().Named("replay")

	sessOpts, err := service.SessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	reps := 0
	sessOpts = append(sessOpts,
		session.WithStreamMode(cfg.StreamMode && !opts.SingleShot),
		session.WithLogger(log),
		session.WithRepHandler(func(context.Context, model.RepEvent) { reps++ }),
	)
	ctrl, err := session.New(sessOpts...)
	if err != nil {
		return nil, err
	}

	stats := &Stats{StartTime: time.Now()}
	log.Info(ctx, "starting replay",
		logger.String("session", ctrl.ID()),
		logger.Bool("stream_mode", ctrl.StreamMode()),
		logger.Bool("quiet", opts.Quiet),
		logger.Duration("frame_interval", opts.FrameInterval),
	)

	lastLabel := ""
	clock := newFrameClock(opts.FrameInterval, stats.StartTime)
	skipped, err := readFrames(ctx, in, log, clock, func(line int, f model.Frame) error {
		labels := ctrl.Process(ctx, f)
		stats.Frames++

		changed := len(labels) > 0 && labels[0] != lastLabel
		if len(labels) > 0 {
			lastLabel = labels[0]
		}
		if opts.Quiet && !changed {
			return nil
		}
		printLabels(out, line, labels)
		return nil
	})
	stats.Skipped = skipped
	if err != nil {
		return stats, err
	}

	stats.Reps = reps
	stats.Label = ctrl.Label()
	stats.Counts = ctrl.Counts()
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	printSummary(out, stats)
	log.Info(ctx, "replay finished",
		logger.Int("frames", stats.Frames),
		logger.Int("skipped", stats.Skipped),
		logger.Int("reps", stats.Reps),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// readFrames decodes one frame per non-blank line, stamps it with clock and
// calls fn for each. Lines that fail to decode are counted and skipped.
func readFrames(ctx context.Context, in io.Reader, log logger.Logger, clock *frameClock, fn func(line int, f model.Frame) error) (skipped int, err error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var f model.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			skipped++
			log.Warn(ctx, "skipping malformed frame", logger.Int("line", line), logger.Error(err))
			continue
		}
		clock.stamp(&f)
		if err := fn(line, f); err != nil {
			return skipped, err
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("read frames: %w", err)
	}
	return skipped, nil
}

func printLabels(out io.Writer, line int, labels []string) {
	fmt.Fprintf(out, "%d\t%s\n", line, strings.Join(labels, " | "))
}

func printSummary(out io.Writer, stats *Stats) {
	fmt.Fprintf(out, "\nframes: %d  skipped: %d  reps: %d\n", stats.Frames, stats.Skipped, stats.Reps)
	if len(stats.Counts) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tREPS\tSTATE")
	for _, c := range stats.Counts {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Class, c.Reps, c.State)
	}
	_ = tw.Flush()
}
