package samples

import "errors"

// Sentinel error kinds for this package.
var (
	ErrLoadSamples     = errors.New("load pose samples")
	ErrMalformedSample = errors.New("malformed pose sample")
)
