package repcount

import (
	"fmt"
	"sort"
)

// Thresholds is an enter/exit pair. Enter must be greater than Exit so noisy
// confidence near a single value cannot oscillate the state.
type Thresholds struct {
	Enter float64 `koanf:"enter" json:"enter"`
	Exit  float64 `koanf:"exit" json:"exit"`
}

// Validate checks the hysteresis gap.
func (t Thresholds) Validate() error {
	if t.Enter <= t.Exit {
		return fmt.Errorf("%w: enter %v must exceed exit %v", ErrInvalidThresholds, t.Enter, t.Exit)
	}
	return nil
}

// Default threshold pairs, in raw classifier units.
var (
	DefaultThresholds = Thresholds{Enter: 4, Exit: 2}
	PushupThresholds  = Thresholds{Enter: 5, Exit: 3}
)

// Table maps class names to thresholds with a fallback pair.
type Table struct {
	Default  Thresholds
	PerClass map[string]Thresholds
}

// DefaultTable returns the built-in table: push-ups use a stricter pair,
// everything else the default.
func DefaultTable() Table {
	return Table{
		Default: DefaultThresholds,
		PerClass: map[string]Thresholds{
			"pushups_down": PushupThresholds,
		},
	}
}

// For returns the thresholds configured for class.
func (t Table) For(class string) Thresholds {
	if th, ok := t.PerClass[class]; ok {
		return th
	}
	return t.Default
}

// Validate checks every pair in the table.
func (t Table) Validate() error {
	if err := t.Default.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	classes := make([]string, 0, len(t.PerClass))
	for c := range t.PerClass {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		if err := t.PerClass[c].Validate(); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
	}
	return nil
}
