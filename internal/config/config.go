// Package config defines service configuration and its defaults.
//
// Values are layered by Load: defaults from New, then an optional YAML
// file, then REPSENSE_* environment variables.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/repsense/internal/domain/repcount"
	"github.com/okian/repsense/internal/domain/validate"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StreamMode enables smoothing and repetition counting. When false each
	// frame only reports its top class.
	StreamMode bool `koanf:"stream_mode"`

	// MinValidPoseFrames is the number of consecutive valid frames required
	// before counters are advanced.
	MinValidPoseFrames int `koanf:"min_valid_pose_frames"`

	// MinRepIntervalMS debounces repetitions of the same class.
	MinRepIntervalMS int `koanf:"min_rep_interval_ms"`

	SmoothingWindow     int     `koanf:"smoothing_window"`
	SmoothingAlpha      float64 `koanf:"smoothing_alpha"`
	SmoothingResetGapMS int     `koanf:"smoothing_reset_gap_ms"`

	// ConfidenceRange maps raw classifier scores to displayed confidence.
	ConfidenceRange float64 `koanf:"confidence_range"`

	DefaultThresholds repcount.Thresholds            `koanf:"default_thresholds"`
	ClassThresholds   map[string]repcount.Thresholds `koanf:"class_thresholds"`

	// CounterClasses overrides the tracked classes and their order. Empty
	// means the built-in exercise list.
	CounterClasses []string `koanf:"counter_classes"`

	// Validators tunes built-in validators by name.
	Validators map[string]validate.Tuning `koanf:"validators"`

	// SamplesPath points at the reference pose CSV. Optional.
	SamplesPath string `koanf:"samples_path"`

	// StoreDSN selects the rep event store: empty for memory, a postgres://
	// URL, or a SQLite path.
	StoreDSN string `koanf:"store_dsn"`

	// EventQueueSize bounds the in-memory rep event queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of store workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the frame id cache; 0 disables the bound.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxSessions caps concurrently open sessions; 0 means unlimited.
	MaxSessions int `koanf:"max_sessions"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		StreamMode:         true,
		MinValidPoseFrames: 3,
		MinRepIntervalMS:   1000,
		SmoothingWindow:    10,
		SmoothingAlpha:     0.2,
		ConfidenceRange:    10,
		DefaultThresholds:  repcount.DefaultThresholds,
		ClassThresholds: map[string]repcount.Thresholds{
			validate.PushupsClass: repcount.PushupThresholds,
		},
		EventQueueSize: 1024,
		WorkerCount:    2,
		DedupeSize:     50_000,
		MaxSessions:    1000,
	}
}

// MinRepInterval returns MinRepIntervalMS as a duration.
func (c *Config) MinRepInterval() time.Duration {
	return time.Duration(c.MinRepIntervalMS) * time.Millisecond
}

// SmoothingResetGap returns SmoothingResetGapMS as a duration.
func (c *Config) SmoothingResetGap() time.Duration {
	return time.Duration(c.SmoothingResetGapMS) * time.Millisecond
}

// Thresholds returns the enter/exit table.
func (c *Config) Thresholds() repcount.Table {
	return repcount.Table{Default: c.DefaultThresholds, PerClass: c.ClassThresholds}
}

// ValidatorSet returns the built-in validators with configured tunings
// applied.
func (c *Config) ValidatorSet() (*validate.Set, error) {
	set := validate.DefaultSet()
	for _, name := range sortedKeys(c.Validators) {
		if err := set.Tune(name, c.Validators[name]); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Addr != "", "addr must not be empty")
	check(validLevel(c.LogLevel), "unknown log_level %q", c.LogLevel)
	check(c.MinValidPoseFrames >= 1, "min_valid_pose_frames must be >= 1")
	check(c.MinRepIntervalMS >= 0, "min_rep_interval_ms must be >= 0")
	check(c.SmoothingWindow >= 1, "smoothing_window must be >= 1")
	check(c.SmoothingAlpha > 0 && c.SmoothingAlpha <= 1, "smoothing_alpha must be in (0, 1]")
	check(c.SmoothingResetGapMS >= 0, "smoothing_reset_gap_ms must be >= 0")
	check(c.ConfidenceRange > 0 && !math.IsInf(c.ConfidenceRange, 0), "confidence_range must be > 0")
	check(c.EventQueueSize >= 1, "queue_size must be >= 1")
	check(c.WorkerCount >= 1, "worker_count must be >= 1")
	check(c.DedupeSize >= 0, "dedupe_size must be >= 0")
	check(c.MaxSessions >= 0, "max_sessions must be >= 0")
	for _, class := range c.CounterClasses {
		check(strings.TrimSpace(class) != "", "counter_classes must not contain empty names")
	}
	if err := c.Thresholds().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.ValidatorSet(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func validLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
