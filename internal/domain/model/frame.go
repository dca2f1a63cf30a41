package model

import "time"

// Frame is one unit of input: the landmarks detected in a camera frame and
// the raw per-class confidences the classifier produced for them.
type Frame struct {
	ID          string        `json:"id,omitempty"` // optional client id for idempotency
	Timestamp   time.Time     `json:"ts"`           // zero means "now"
	Landmarks   LandmarkFrame `json:"landmarks"`
	Confidences ConfidenceMap `json:"confidences"`
}

// RepEvent is emitted whenever a repetition counter increments.
type RepEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ClassName string    `json:"class"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"ts"`
}
