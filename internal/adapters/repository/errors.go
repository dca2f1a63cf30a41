package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrOpenStore = errors.New("open rep event store")
	ErrClosed    = errors.New("rep event store closed")
)
