package validate

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnknownValidator = errors.New("unknown validator")
	ErrInvalidTuning    = errors.New("invalid validator tuning")
)
