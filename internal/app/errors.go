package service

import "errors"

// Sentinel errors returned by Service. Callers match them with errors.Is.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionLimit    = errors.New("session limit reached")
)
