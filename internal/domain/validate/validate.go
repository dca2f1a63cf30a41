// Package validate gates repetition counting with per-exercise geometric
// checks over raw landmarks and the smoothed classifier confidence.
//
// Each exercise is a Validator registered in an ordered Set. A frame is
// valid when any validator accepts it.
package validate

import (
	"fmt"
	"math"

	"github.com/okian/repsense/internal/domain/model"
)

// Class names the default validators look at.
const (
	PushupsClass       = "pushups_down"
	SquatsClass        = "squats_down"
	FrontRaiseClass    = "front_raise_down"
	HipThrustClass     = "hip_thrust_down"
	WindmillLeftClass  = "windmill_left"
	WindmillRightClass = "windmill_right"
)

// Default validator names.
const (
	Pushup     = "pushup"
	Squat      = "squat"
	FrontRaise = "front_raise"
	HipThrust  = "hip_thrust"
	Windmill   = "windmill"
)

// GeometryFunc checks exercise-specific landmark positions. It is only called
// once every required landmark is known to be present.
type GeometryFunc func(lm model.LandmarkFrame, tolerance float64) bool

// Validator decides whether a frame plausibly shows one exercise.
type Validator struct {
	Name string
	// Classes whose smoothed confidence (max over the set) must exceed
	// MinConfidence.
	Classes       []string
	MinConfidence float64
	// Tolerance is passed to Geometry; its meaning depends on the exercise.
	Tolerance float64
	Landmarks []model.LandmarkType
	Geometry  GeometryFunc
}

// Validate returns true when all landmarks are present, the geometry holds
// and the confidence is high enough. Panics are treated as invalid.
func (v Validator) Validate(lm model.LandmarkFrame, smoothed model.ConfidenceMap) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	if _, present := lm.Lookup(v.Landmarks...); !present {
		return false
	}
	if v.Geometry != nil && !v.Geometry(lm, v.Tolerance) {
		return false
	}
	return smoothed.Max(v.Classes...) > v.MinConfidence
}

// Tuning overrides the numeric knobs of a registered validator.
type Tuning struct {
	MinConfidence *float64 `koanf:"min_confidence"`
	Tolerance     *float64 `koanf:"tolerance"`
}

// Result is the outcome of one validator for one frame.
type Result struct {
	Name  string
	Valid bool
}

// Set is an ordered collection of validators.
type Set struct {
	validators []Validator
}

// NewSet creates a Set from validators, preserving order.
func NewSet(validators ...Validator) *Set {
	s := &Set{}
	for _, v := range validators {
		s.Register(v)
	}
	return s
}

// Register appends v, replacing an existing validator with the same name in
// place.
func (s *Set) Register(v Validator) {
	for i := range s.validators {
		if s.validators[i].Name == v.Name {
			s.validators[i] = v
			return
		}
	}
	s.validators = append(s.validators, v)
}

// Tune adjusts the thresholds of the named validator.
func (s *Set) Tune(name string, t Tuning) error {
	for i := range s.validators {
		if s.validators[i].Name != name {
			continue
		}
		if t.MinConfidence != nil {
			if *t.MinConfidence < 0 || math.IsNaN(*t.MinConfidence) {
				return fmt.Errorf("%w: %s min_confidence %v", ErrInvalidTuning, name, *t.MinConfidence)
			}
			s.validators[i].MinConfidence = *t.MinConfidence
		}
		if t.Tolerance != nil {
			if *t.Tolerance < 0 || math.IsNaN(*t.Tolerance) {
				return fmt.Errorf("%w: %s tolerance %v", ErrInvalidTuning, name, *t.Tolerance)
			}
			s.validators[i].Tolerance = *t.Tolerance
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownValidator, name)
}

// Get returns the named validator.
func (s *Set) Get(name string) (Validator, bool) {
	for _, v := range s.validators {
		if v.Name == name {
			return v, true
		}
	}
	return Validator{}, false
}

// Names returns validator names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.validators))
	for i, v := range s.validators {
		out[i] = v.Name
	}
	return out
}

// Results runs every validator and reports each outcome in order.
func (s *Set) Results(lm model.LandmarkFrame, smoothed model.ConfidenceMap) []Result {
	out := make([]Result, len(s.validators))
	for i, v := range s.validators {
		out[i] = Result{Name: v.Name, Valid: v.Validate(lm, smoothed)}
	}
	return out
}

// AnyValid reports whether any result is valid.
func AnyValid(results []Result) bool {
	for _, r := range results {
		if r.Valid {
			return true
		}
	}
	return false
}
