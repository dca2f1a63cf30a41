package validate

import (
	"math"

	"github.com/okian/repsense/internal/domain/model"
)

// Default thresholds. Confidences are in raw classifier units; tolerances are
// in normalized image coordinates.
const (
	pushupMinConfidence     = 2.0
	pushupHorizontalEpsilon = 0.15

	squatMinConfidence      = 1.0
	frontRaiseMinConfidence = 1.0

	hipThrustMinConfidence = 1.0
	hipThrustLyingEpsilon  = 0.2

	windmillMinConfidence = 1.0
	windmillArmMargin     = 0.1
)

var (
	upperBody = []model.LandmarkType{
		model.LeftShoulder, model.RightShoulder,
		model.LeftElbow, model.RightElbow,
		model.LeftWrist, model.RightWrist,
		model.LeftHip, model.RightHip,
	}
	lowerBody = []model.LandmarkType{
		model.LeftHip, model.RightHip,
		model.LeftKnee, model.RightKnee,
		model.LeftAnkle, model.RightAnkle,
		model.LeftShoulder, model.RightShoulder,
	}
)

// DefaultSet returns the built-in exercise validators in their canonical
// order: pushup, squat, front raise, hip thrust, windmill.
func DefaultSet() *Set {
	return NewSet(
		Validator{
			Name:          Pushup,
			Classes:       []string{PushupsClass},
			MinConfidence: pushupMinConfidence,
			Tolerance:     pushupHorizontalEpsilon,
			Landmarks:     upperBody,
			Geometry:      pushupGeometry,
		},
		Validator{
			Name:          Squat,
			Classes:       []string{SquatsClass},
			MinConfidence: squatMinConfidence,
			Landmarks:     lowerBody,
			Geometry:      squatGeometry,
		},
		Validator{
			Name:          FrontRaise,
			Classes:       []string{FrontRaiseClass},
			MinConfidence: frontRaiseMinConfidence,
			Landmarks:     upperBody,
			Geometry:      frontRaiseGeometry,
		},
		Validator{
			Name:          HipThrust,
			Classes:       []string{HipThrustClass},
			MinConfidence: hipThrustMinConfidence,
			Tolerance:     hipThrustLyingEpsilon,
			Landmarks:     lowerBody,
			Geometry:      hipThrustGeometry,
		},
		Validator{
			Name:          Windmill,
			Classes:       []string{WindmillLeftClass, WindmillRightClass},
			MinConfidence: windmillMinConfidence,
			Tolerance:     windmillArmMargin,
			Landmarks:     upperBody,
			Geometry:      windmillGeometry,
		},
	)
}

func meanY(lm model.LandmarkFrame, a, b model.LandmarkType) float64 {
	return (lm[a].Y + lm[b].Y) / 2
}

// Wrists below shoulders and a roughly horizontal torso.
func pushupGeometry(lm model.LandmarkFrame, eps float64) bool {
	wristsLow := lm[model.LeftWrist].Y > lm[model.LeftShoulder].Y &&
		lm[model.RightWrist].Y > lm[model.RightShoulder].Y
	shoulderY := meanY(lm, model.LeftShoulder, model.RightShoulder)
	hipY := meanY(lm, model.LeftHip, model.RightHip)
	return wristsLow && math.Abs(shoulderY-hipY) < eps
}

// Upright with hips above ankles.
func squatGeometry(lm model.LandmarkFrame, _ float64) bool {
	shoulderY := meanY(lm, model.LeftShoulder, model.RightShoulder)
	hipY := meanY(lm, model.LeftHip, model.RightHip)
	ankleY := meanY(lm, model.LeftAnkle, model.RightAnkle)
	return shoulderY < hipY && hipY < ankleY
}

// Upright with wrists inside the frame.
func frontRaiseGeometry(lm model.LandmarkFrame, _ float64) bool {
	shoulderY := meanY(lm, model.LeftShoulder, model.RightShoulder)
	hipY := meanY(lm, model.LeftHip, model.RightHip)
	wristY := meanY(lm, model.LeftWrist, model.RightWrist)
	return shoulderY < hipY && wristY > 0
}

// Shoulders level with hips and knees strictly between hips and ankles.
func hipThrustGeometry(lm model.LandmarkFrame, eps float64) bool {
	shoulderY := meanY(lm, model.LeftShoulder, model.RightShoulder)
	hipY := meanY(lm, model.LeftHip, model.RightHip)
	kneeY := meanY(lm, model.LeftKnee, model.RightKnee)
	ankleY := meanY(lm, model.LeftAnkle, model.RightAnkle)
	return math.Abs(shoulderY-hipY) < eps && hipY < kneeY && kneeY < ankleY
}

// Upright with one wrist above its shoulder and the other below its hip.
func windmillGeometry(lm model.LandmarkFrame, margin float64) bool {
	shoulderY := meanY(lm, model.LeftShoulder, model.RightShoulder)
	hipY := meanY(lm, model.LeftHip, model.RightHip)
	if shoulderY >= hipY {
		return false
	}
	leftUp := lm[model.LeftWrist].Y < lm[model.LeftShoulder].Y-margin
	rightUp := lm[model.RightWrist].Y < lm[model.RightShoulder].Y-margin
	leftDown := lm[model.LeftWrist].Y > lm[model.LeftHip].Y+margin
	rightDown := lm[model.RightWrist].Y > lm[model.RightHip].Y+margin
	return (leftUp && rightDown) || (rightUp && leftDown)
}
