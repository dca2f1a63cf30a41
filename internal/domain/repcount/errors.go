package repcount

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidThresholds = errors.New("invalid thresholds")
)
