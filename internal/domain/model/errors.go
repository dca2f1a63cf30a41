package model

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnknownLandmark = errors.New("unknown landmark")
)
