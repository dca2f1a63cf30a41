package session

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid session config")
)
