package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/repsense/internal/app"
	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/pkg/logger"
)

// Remote push defaults.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 2
	retryBackoff   = 100 * time.Millisecond
)

// ErrServer is returned when the server answers with an unexpected status.
var ErrServer = errors.New("unexpected server response")

// PushOptions control a replay against a running server.
type PushOptions struct {
	Options
	BaseURL string
	Timeout time.Duration
	// Retries is the number of extra attempts per frame after a transport
	// error or 5xx answer. Frames get a line-based id so a retried frame is
	// deduplicated by the server.
	Retries int
	// Keep leaves the remote session open after the run.
	Keep bool
}

// PushStats summarises a remote replay.
type PushStats struct {
	Stats
	SessionID  string
	Duplicates int
	Events     []model.RepEvent
}

// client wraps http.Client with JSON helpers.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do sends body as JSON and decodes a JSON answer into out when the status
// matches want.
func (c *client) do(ctx context.Context, method, path string, body, out any, want int) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrServer, e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrServer }

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return !errors.Is(err, context.Canceled)
	}
	return false
}

// Push replays frames against a running server: it opens a session, posts
// every frame in order, prints the labels the server returns and finally the
// stored rep history.
func Push(ctx context.Context, opts PushOptions, in io.Reader, out io.Writer) (*PushStats, error) {
	log := logger.Get().Named("replay")
	c := newClient(opts.BaseURL, opts.Timeout)

	var create struct {
		StreamMode *bool `json:"stream_mode,omitempty"`
	}
	if opts.SingleShot {
		single := false
		create.StreamMode = &single
	}
	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/sessions", create, &info, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	base := "/sessions/" + info.ID

	stats := &PushStats{SessionID: info.ID}
	stats.StartTime = time.Now()
	log.Info(ctx, "pushing frames", logger.String("url", c.baseURL), logger.String("session", info.ID))

	if !opts.Keep {
		defer func() {
			if err := c.do(context.WithoutCancel(ctx), http.MethodDelete, base, nil, nil, http.StatusNoContent); err != nil {
				log.Warn(ctx, "closing remote session failed", logger.Error(err))
			}
		}()
	}

	lastLabel := ""
	clock := newFrameClock(opts.FrameInterval, time.Now().UTC())
	skipped, err := readFrames(ctx, in, log, clock, func(line int, f model.Frame) error {
		if f.ID == "" {
			f.ID = "line-" + strconv.Itoa(line)
		}
		var res service.FrameResult
		var err error
		for attempt := 0; attempt <= opts.Retries; attempt++ {
			if attempt > 0 {
				log.Warn(ctx, "retrying frame", logger.Int("line", line), logger.Int("attempt", attempt), logger.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryBackoff):
				}
			}
			err = c.do(ctx, http.MethodPost, base+"/frames", f, &res, http.StatusOK)
			if err == nil || !retryable(err) {
				break
			}
		}
		if err != nil {
			return fmt.Errorf("frame on line %d: %w", line, err)
		}

		stats.Frames++
		if res.Duplicate {
			stats.Duplicates++
		}
		changed := len(res.Labels) > 0 && res.Labels[0] != lastLabel
		if len(res.Labels) > 0 {
			lastLabel = res.Labels[0]
		}
		if !opts.Quiet || changed {
			printLabels(out, line, res.Labels)
		}
		return nil
	})
	stats.Skipped = skipped
	if err != nil {
		return stats, err
	}

	if err := c.do(ctx, http.MethodGet, base, nil, &info, http.StatusOK); err != nil {
		return stats, fmt.Errorf("fetch session: %w", err)
	}
	var history struct {
		Events []model.RepEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, base+"/history", nil, &history, http.StatusOK); err != nil {
		log.Warn(ctx, "fetching history failed", logger.Error(err))
	}

	stats.Events = history.Events
	stats.Label = info.Label
	stats.Counts = info.Counts
	for _, cc := range info.Counts {
		stats.Reps += cc.Reps
	}
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	printSummary(out, &stats.Stats)
	fmt.Fprintf(out, "session: %s  duplicates: %d  stored events: %d\n", stats.SessionID, stats.Duplicates, len(stats.Events))
	return stats, nil
}
