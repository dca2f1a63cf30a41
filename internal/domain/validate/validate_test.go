package validate_test

import (
	"errors"
	"testing"

	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/internal/domain/validate"
	. "github.com/smartystreets/goconvey/convey"
)

func pose(ys map[model.LandmarkType]float64) model.LandmarkFrame {
	lm := make(model.LandmarkFrame, len(ys))
	for t, y := range ys {
		lm[t] = model.Point{X: 0.5, Y: y}
	}
	return lm
}

func pushupPose() model.LandmarkFrame {
	return pose(map[model.LandmarkType]float64{
		model.LeftShoulder: 0.50, model.RightShoulder: 0.50,
		model.LeftElbow: 0.60, model.RightElbow: 0.60,
		model.LeftWrist: 0.70, model.RightWrist: 0.70,
		model.LeftHip: 0.55, model.RightHip: 0.55,
	})
}

func standingPose() model.LandmarkFrame {
	return pose(map[model.LandmarkType]float64{
		model.LeftShoulder: 0.30, model.RightShoulder: 0.30,
		model.LeftElbow: 0.45, model.RightElbow: 0.45,
		model.LeftWrist: 0.55, model.RightWrist: 0.55,
		model.LeftHip: 0.60, model.RightHip: 0.60,
		model.LeftKnee: 0.75, model.RightKnee: 0.75,
		model.LeftAnkle: 0.90, model.RightAnkle: 0.90,
	})
}

func windmillPose() model.LandmarkFrame {
	lm := standingPose()
	lm[model.LeftWrist] = model.Point{Y: 0.10}
	lm[model.RightWrist] = model.Point{Y: 0.75}
	return lm
}

func hipThrustPose() model.LandmarkFrame {
	return pose(map[model.LandmarkType]float64{
		model.LeftShoulder: 0.60, model.RightShoulder: 0.60,
		model.LeftHip: 0.50, model.RightHip: 0.50,
		model.LeftKnee: 0.60, model.RightKnee: 0.60,
		model.LeftAnkle: 0.70, model.RightAnkle: 0.70,
	})
}

func TestDefaultSet(t *testing.T) {
	Convey("Given the default validator set", t, func() {
		set := validate.DefaultSet()

		Convey("Then validators run in canonical order", func() {
			So(set.Names(), ShouldResemble, []string{
				validate.Pushup, validate.Squat, validate.FrontRaise, validate.HipThrust, validate.Windmill,
			})
		})

		Convey("When a horizontal pose has push-up confidence", func() {
			conf := model.ConfidenceMap{validate.PushupsClass: 2.5}
			v, _ := set.Get(validate.Pushup)

			So(v.Validate(pushupPose(), conf), ShouldBeTrue)
			So(validate.AnyValid(set.Results(pushupPose(), conf)), ShouldBeTrue)

			Convey("And the confidence is at the threshold", func() {
				So(v.Validate(pushupPose(), model.ConfidenceMap{validate.PushupsClass: 2.0}), ShouldBeFalse)
			})

			Convey("And a wrist is above its shoulder", func() {
				lm := pushupPose()
				lm[model.LeftWrist] = model.Point{Y: 0.4}
				So(v.Validate(lm, conf), ShouldBeFalse)
			})

			Convey("And a required landmark is missing", func() {
				lm := pushupPose()
				delete(lm, model.RightElbow)
				So(v.Validate(lm, conf), ShouldBeFalse)
			})
		})

		Convey("When a standing pose is checked", func() {
			lm := standingPose()
			squat, _ := set.Get(validate.Squat)
			front, _ := set.Get(validate.FrontRaise)
			pushup, _ := set.Get(validate.Pushup)

			Convey("Then squat needs its own confidence", func() {
				So(squat.Validate(lm, model.ConfidenceMap{validate.SquatsClass: 1.5}), ShouldBeTrue)
				So(squat.Validate(lm, model.ConfidenceMap{validate.FrontRaiseClass: 5}), ShouldBeFalse)
			})

			Convey("Then front raise accepts it with front raise confidence", func() {
				So(front.Validate(lm, model.ConfidenceMap{validate.FrontRaiseClass: 1.1}), ShouldBeTrue)
			})

			Convey("Then push-up rejects a vertical torso", func() {
				So(pushup.Validate(lm, model.ConfidenceMap{validate.PushupsClass: 9}), ShouldBeFalse)
			})

			Convey("Then squat rejects ankles above hips", func() {
				lm[model.LeftAnkle] = model.Point{Y: 0.2}
				lm[model.RightAnkle] = model.Point{Y: 0.2}
				So(squat.Validate(lm, model.ConfidenceMap{validate.SquatsClass: 3}), ShouldBeFalse)
			})
		})

		Convey("When a hip thrust pose is checked", func() {
			v, _ := set.Get(validate.HipThrust)
			conf := model.ConfidenceMap{validate.HipThrustClass: 1.2}

			So(v.Validate(hipThrustPose(), conf), ShouldBeTrue)

			Convey("Then knees outside hip-ankle span are rejected", func() {
				lm := hipThrustPose()
				lm[model.LeftKnee] = model.Point{Y: 0.8}
				lm[model.RightKnee] = model.Point{Y: 0.8}
				So(v.Validate(lm, conf), ShouldBeFalse)
			})
		})

		Convey("When a windmill pose is checked", func() {
			v, _ := set.Get(validate.Windmill)

			Convey("Then either side's confidence is enough", func() {
				So(v.Validate(windmillPose(), model.ConfidenceMap{validate.WindmillRightClass: 1.5}), ShouldBeTrue)
				So(v.Validate(windmillPose(), model.ConfidenceMap{validate.WindmillLeftClass: 1.5}), ShouldBeTrue)
			})

			Convey("Then the mirrored pose is accepted", func() {
				lm := windmillPose()
				lm[model.LeftWrist], lm[model.RightWrist] = lm[model.RightWrist], lm[model.LeftWrist]
				So(v.Validate(lm, model.ConfidenceMap{validate.WindmillLeftClass: 2}), ShouldBeTrue)
			})

			Convey("Then symmetric arms are rejected", func() {
				So(v.Validate(standingPose(), model.ConfidenceMap{validate.WindmillLeftClass: 5}), ShouldBeFalse)
			})
		})

		Convey("When no validator matches", func() {
			results := set.Results(standingPose(), model.ConfidenceMap{})

			Convey("Then every result is invalid", func() {
				So(results, ShouldHaveLength, 5)
				So(validate.AnyValid(results), ShouldBeFalse)
			})
		})
	})
}

func TestSetTuneAndRegister(t *testing.T) {
	Convey("Given the default validator set", t, func() {
		set := validate.DefaultSet()

		Convey("When the push-up minimum confidence is lowered", func() {
			minConf := 0.5
			So(set.Tune(validate.Pushup, validate.Tuning{MinConfidence: &minConf}), ShouldBeNil)
			v, _ := set.Get(validate.Pushup)

			So(v.Validate(pushupPose(), model.ConfidenceMap{validate.PushupsClass: 1}), ShouldBeTrue)
		})

		Convey("When tuning an unknown validator", func() {
			err := set.Tune("burpee", validate.Tuning{})
			So(errors.Is(err, validate.ErrUnknownValidator), ShouldBeTrue)
		})

		Convey("When tuning with a negative tolerance", func() {
			tol := -1.0
			err := set.Tune(validate.HipThrust, validate.Tuning{Tolerance: &tol})
			So(errors.Is(err, validate.ErrInvalidTuning), ShouldBeTrue)
		})

		Convey("When a validator panics", func() {
			set.Register(validate.Validator{
				Name:     "broken",
				Classes:  []string{"broken"},
				Geometry: func(model.LandmarkFrame, float64) bool { panic("boom") },
			})
			v, ok := set.Get("broken")

			Convey("Then it is treated as invalid", func() {
				So(ok, ShouldBeTrue)
				So(func() { v.Validate(pushupPose(), model.ConfidenceMap{"broken": 10}) }, ShouldNotPanic)
				So(v.Validate(pushupPose(), model.ConfidenceMap{"broken": 10}), ShouldBeFalse)
				So(set.Names(), ShouldHaveLength, 6)
			})
		})

		Convey("When registering an existing name", func() {
			set.Register(validate.Validator{Name: validate.Squat, Classes: []string{"x"}})

			Convey("Then it replaces in place", func() {
				So(set.Names()[1], ShouldEqual, validate.Squat)
				So(set.Names(), ShouldHaveLength, 5)
			})
		})
	})
}
