package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	model "github.com/okian/repsense/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestLandmarkType(t *testing.T) {
	convey.Convey("Given landmark types", t, func() {
		convey.Convey("When formatting and parsing names", func() {
			convey.So(model.LeftShoulder.String(), convey.ShouldEqual, "LEFT_SHOULDER")
			convey.So(model.RightFootIndex.String(), convey.ShouldEqual, "RIGHT_FOOT_INDEX")
			convey.So(model.NumLandmarks, convey.ShouldEqual, 33)

			lt, err := model.ParseLandmarkType("left_hip")
			convey.So(err, convey.ShouldBeNil)
			convey.So(lt, convey.ShouldEqual, model.LeftHip)
		})

		convey.Convey("When parsing an unknown name", func() {
			_, err := model.ParseLandmarkType("LEFT_TAIL")

			convey.Convey("Then it should fail with ErrUnknownLandmark", func() {
				convey.So(errors.Is(err, model.ErrUnknownLandmark), convey.ShouldBeTrue)
			})
		})
	})
}

func TestFrameJSON(t *testing.T) {
	convey.Convey("Given a JSON encoded frame", t, func() {
		raw := `{"id":"f-1","ts":"2024-05-01T10:00:00Z",
			"landmarks":{"LEFT_SHOULDER":{"x":0.4,"y":0.3},"RIGHT_HIP":{"x":0.6,"y":0.7,"z":-0.1}},
			"confidences":{"pushups_down":6.5}}`

		var f model.Frame
		err := json.Unmarshal([]byte(raw), &f)

		convey.Convey("Then landmarks are keyed by type", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(f.ID, convey.ShouldEqual, "f-1")
			convey.So(f.Landmarks[model.LeftShoulder].Y, convey.ShouldEqual, 0.3)
			convey.So(f.Landmarks[model.RightHip].Z, convey.ShouldEqual, -0.1)
			convey.So(f.Confidences.Get("pushups_down"), convey.ShouldEqual, 6.5)
			convey.So(f.Timestamp.IsZero(), convey.ShouldBeFalse)
		})

		convey.Convey("And a frame with an unknown landmark is rejected", func() {
			err := json.Unmarshal([]byte(`{"landmarks":{"TAIL":{"x":1,"y":1}}}`), &f)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestLandmarkFrameLookup(t *testing.T) {
	convey.Convey("Given a partial landmark frame", t, func() {
		f := model.LandmarkFrame{
			model.LeftWrist:  {Y: 0.8},
			model.RightWrist: {Y: 0.9},
		}

		convey.Convey("When every requested landmark is present", func() {
			pts, ok := f.Lookup(model.LeftWrist, model.RightWrist)
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(pts[1].Y, convey.ShouldEqual, 0.9)
		})

		convey.Convey("When one landmark is missing", func() {
			pts, ok := f.Lookup(model.LeftWrist, model.LeftHip)
			convey.So(ok, convey.ShouldBeFalse)
			convey.So(pts, convey.ShouldBeNil)
		})

		convey.Convey("When the frame is empty", func() {
			convey.So(model.LandmarkFrame{}.Empty(), convey.ShouldBeTrue)
			convey.So(f.Empty(), convey.ShouldBeFalse)
		})
	})
}

func TestConfidenceMap(t *testing.T) {
	convey.Convey("Given a confidence map", t, func() {
		m := model.ConfidenceMap{"squats_down": 3, "pushups_down": 7, "windmill_left": 7}

		convey.Convey("Then absent classes read as zero", func() {
			convey.So(m.Get("hip_thrust_down"), convey.ShouldEqual, 0)
		})

		convey.Convey("Then Max considers only the named classes", func() {
			convey.So(m.Max("squats_down", "hip_thrust_down"), convey.ShouldEqual, 3)
			convey.So(m.Max(), convey.ShouldEqual, 0)
		})

		convey.Convey("Then Top breaks ties by class name", func() {
			class, conf, ok := m.Top()
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(class, convey.ShouldEqual, "pushups_down")
			convey.So(conf, convey.ShouldEqual, 7)
		})

		convey.Convey("Then Top on an empty map reports nothing", func() {
			_, _, ok := model.ConfidenceMap{}.Top()
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("Then Clone does not alias", func() {
			c := m.Clone()
			c["squats_down"] = 100
			convey.So(m.Get("squats_down"), convey.ShouldEqual, 3)
		})
	})
}
