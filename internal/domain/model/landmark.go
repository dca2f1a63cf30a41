// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// LandmarkType identifies one of the 33 body landmarks produced by the
// BlazePose topology.
type LandmarkType int

// Body landmarks in BlazePose index order.
const (
	Nose LandmarkType = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	LeftMouth
	RightMouth
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	// NumLandmarks is the number of landmarks in a full pose.
	NumLandmarks = int(RightFootIndex) + 1
)

var landmarkNames = [NumLandmarks]string{
	"NOSE",
	"LEFT_EYE_INNER", "LEFT_EYE", "LEFT_EYE_OUTER",
	"RIGHT_EYE_INNER", "RIGHT_EYE", "RIGHT_EYE_OUTER",
	"LEFT_EAR", "RIGHT_EAR",
	"LEFT_MOUTH", "RIGHT_MOUTH",
	"LEFT_SHOULDER", "RIGHT_SHOULDER",
	"LEFT_ELBOW", "RIGHT_ELBOW",
	"LEFT_WRIST", "RIGHT_WRIST",
	"LEFT_PINKY", "RIGHT_PINKY",
	"LEFT_INDEX", "RIGHT_INDEX",
	"LEFT_THUMB", "RIGHT_THUMB",
	"LEFT_HIP", "RIGHT_HIP",
	"LEFT_KNEE", "RIGHT_KNEE",
	"LEFT_ANKLE", "RIGHT_ANKLE",
	"LEFT_HEEL", "RIGHT_HEEL",
	"LEFT_FOOT_INDEX", "RIGHT_FOOT_INDEX",
}

// String returns the upper snake case name, e.g. LEFT_SHOULDER.
func (t LandmarkType) String() string {
	if t < 0 || int(t) >= NumLandmarks {
		return fmt.Sprintf("LANDMARK(%d)", int(t))
	}
	return landmarkNames[t]
}

// ParseLandmarkType resolves a landmark name (case-insensitive).
func ParseLandmarkType(name string) (LandmarkType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range landmarkNames {
		if n == upper {
			return LandmarkType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLandmark, name)
}

// MarshalText lets LandmarkType be used as a JSON object key.
func (t LandmarkType) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= NumLandmarks {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLandmark, int(t))
	}
	return []byte(landmarkNames[t]), nil
}

// UnmarshalText parses a landmark name.
func (t *LandmarkType) UnmarshalText(b []byte) error {
	v, err := ParseLandmarkType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Point is a landmark position in image-normalized coordinates. Smaller Y
// is higher in the frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkFrame maps landmarks to their position for a single frame. An empty
// frame means no pose was detected.
type LandmarkFrame map[LandmarkType]Point

// Empty reports whether no landmark was detected.
func (f LandmarkFrame) Empty() bool { return len(f) == 0 }

// Lookup returns the positions of all requested landmarks, or false if any
// of them is missing.
func (f LandmarkFrame) Lookup(types ...LandmarkType) ([]Point, bool) {
	out := make([]Point, len(types))
	for i, t := range types {
		p, ok := f[t]
		if !ok {
			return nil, false
		}
		out[i] = p
	}
	return out, true
}
