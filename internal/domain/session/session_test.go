package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/repsense/internal/domain/model"
	"github.com/okian/repsense/internal/domain/repcount"
	"github.com/okian/repsense/internal/domain/session"
	"github.com/okian/repsense/internal/domain/smoothing"
	"github.com/okian/repsense/internal/domain/validate"
	"github.com/okian/repsense/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func pushupPose() model.LandmarkFrame {
	lm := model.LandmarkFrame{}
	set := func(y float64, types ...model.LandmarkType) {
		for _, t := range types {
			lm[t] = model.Point{X: 0.5, Y: y}
		}
	}
	set(0.50, model.LeftShoulder, model.RightShoulder)
	set(0.60, model.LeftElbow, model.RightElbow)
	set(0.70, model.LeftWrist, model.RightWrist)
	set(0.55, model.LeftHip, model.RightHip)
	return lm
}

// anyPose passes the permissive validator used by most tests.
func anyPose() model.LandmarkFrame {
	return model.LandmarkFrame{model.Nose: {X: 0.5, Y: 0.2}}
}

func permissiveSet() *validate.Set {
	return validate.NewSet(validate.Validator{
		Name:          "any",
		Classes:       session.DefaultCounterClasses,
		MinConfidence: 0.5,
	})
}

func frame(at time.Time, lm model.LandmarkFrame, conf model.ConfidenceMap) model.Frame {
	return model.Frame{Timestamp: at, Landmarks: lm, Confidences: conf}
}

func newController(opts ...session.Option) *session.Controller {
	base := []session.Option{
		session.WithSmoothing(smoothing.WithWindowSize(1)),
		session.WithValidators(permissiveSet()),
	}
	c, err := session.New(append(base, opts...)...)
	So(err, ShouldBeNil)
	return c
}

func TestPushupScenario(t *testing.T) {
	Convey("Given a stream-mode controller with a tuned push-up validator", t, func() {
		ctx := context.Background()
		set := validate.DefaultSet()
		minConf := 0.5
		So(set.Tune(validate.Pushup, validate.Tuning{MinConfidence: &minConf}), ShouldBeNil)

		c, err := session.New(
			session.WithSmoothing(smoothing.WithWindowSize(1)),
			session.WithValidators(set),
		)
		So(err, ShouldBeNil)

		Convey("When push-up confidences 0,6,6,6,1 arrive 100ms apart", func() {
			var got [][]string
			for i, v := range []float64{0, 6, 6, 6, 1} {
				at := t0.Add(time.Duration(i) * 100 * time.Millisecond)
				got = append(got, c.Process(ctx, frame(at, pushupPose(), model.ConfidenceMap{validate.PushupsClass: v})))
			}

			Convey("Then the valid-pose gate holds the initial label until the third valid frame", func() {
				So(got[0], ShouldResemble, []string{session.InitialLabel})
				So(got[1], ShouldResemble, []string{session.InitialLabel})
				So(got[2], ShouldResemble, []string{session.InitialLabel})
				So(got[3], ShouldResemble, []string{session.InitialLabel, "pushups_down : 0.60 confidence"})
			})

			Convey("And the exit frame counts one repetition", func() {
				So(got[4], ShouldResemble, []string{"pushups_down : 1 reps", "pushups_down : 0.10 confidence"})
				So(c.Counts()[0], ShouldResemble, session.ClassCount{Class: validate.PushupsClass, Reps: 1, State: "rest"})
			})
		})
	})
}

func TestMinimumRepInterval(t *testing.T) {
	Convey("Given a controller fed 100ms apart", t, func() {
		ctx := context.Background()
		c := newController()
		at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }
		push := func(ms int, v float64) []string {
			return c.Process(ctx, frame(at(ms), anyPose(), model.ConfidenceMap{validate.PushupsClass: v}))
		}

		push(0, 6)
		push(100, 6)
		push(200, 6)
		So(push(300, 1)[0], ShouldEqual, "pushups_down : 1 reps")

		Convey("When a second repetition completes within one second", func() {
			push(400, 6)
			labels := push(500, 1)

			Convey("Then it is not counted", func() {
				So(labels[0], ShouldEqual, "pushups_down : 1 reps")
				So(c.Counts()[0].Reps, ShouldEqual, 1)
				So(c.Counts()[0].State, ShouldEqual, "rest")
			})

			Convey("And a repetition a full second after the first counts", func() {
				push(600, 6)
				So(push(1300, 1)[0], ShouldEqual, "pushups_down : 2 reps")
			})
		})
	})
}

func TestValidPoseStreak(t *testing.T) {
	Convey("Given a controller that has counted a repetition", t, func() {
		ctx := context.Background()
		c := newController()
		for i, v := range []float64{6, 6, 6, 1} {
			c.Process(ctx, frame(t0.Add(time.Duration(i)*time.Second), anyPose(), model.ConfidenceMap{validate.SquatsClass: v}))
		}
		So(c.Label(), ShouldEqual, "squats_down : 1 reps")

		Convey("When a frame arrives without landmarks", func() {
			labels := c.Process(ctx, frame(t0.Add(10*time.Second), nil, model.ConfidenceMap{validate.SquatsClass: 6}))

			Convey("Then only the last repetition label is returned and the streak resets", func() {
				So(labels, ShouldResemble, []string{"squats_down : 1 reps"})
				So(c.Streak(), ShouldEqual, 0)
			})

			Convey("And the next valid frame is held behind the gate", func() {
				labels := c.Process(ctx, frame(t0.Add(11*time.Second), anyPose(), model.ConfidenceMap{validate.SquatsClass: 6}))
				So(labels, ShouldResemble, []string{"squats_down : 1 reps"})
				So(c.Streak(), ShouldEqual, 1)
			})
		})

		Convey("When no validator accepts the pose", func() {
			labels := c.Process(ctx, frame(t0.Add(10*time.Second), anyPose(), model.ConfidenceMap{validate.SquatsClass: 0.1}))

			Convey("Then the streak resets and counters are not advanced", func() {
				So(labels, ShouldResemble, []string{"squats_down : 1 reps"})
				So(c.Streak(), ShouldEqual, 0)
			})
		})
	})
}

func TestShortStreakNeverCounts(t *testing.T) {
	Convey("Given a stream-mode controller with a tuned push-up validator", t, func() {
		ctx := context.Background()
		set := validate.DefaultSet()
		minConf := 0.5
		So(set.Tune(validate.Pushup, validate.Tuning{MinConfidence: &minConf}), ShouldBeNil)

		var events []model.RepEvent
		c, err := session.New(
			session.WithSmoothing(smoothing.WithWindowSize(1)),
			session.WithValidators(set),
			session.WithRepHandler(func(_ context.Context, ev model.RepEvent) { events = append(events, ev) }),
		)
		So(err, ShouldBeNil)

		wristsUp := pushupPose()
		wristsUp[model.LeftWrist] = model.Point{X: 0.5, Y: 0.3}
		wristsUp[model.RightWrist] = model.Point{X: 0.5, Y: 0.3}

		Convey("When two valid frames cross the enter threshold and an invalid frame crosses the exit threshold", func() {
			var got [][]string
			got = append(got, c.Process(ctx, frame(t0, pushupPose(), model.ConfidenceMap{validate.PushupsClass: 6})))
			got = append(got, c.Process(ctx, frame(t0.Add(time.Second), pushupPose(), model.ConfidenceMap{validate.PushupsClass: 6})))
			So(c.Streak(), ShouldEqual, 2)
			got = append(got, c.Process(ctx, frame(t0.Add(2*time.Second), wristsUp, model.ConfidenceMap{validate.PushupsClass: 1})))

			Convey("Then no repetition is counted and the streak resets", func() {
				for _, labels := range got {
					So(labels, ShouldResemble, []string{session.InitialLabel})
				}
				So(c.Streak(), ShouldEqual, 0)
				So(events, ShouldBeEmpty)
				for _, cc := range c.Counts() {
					So(cc.Reps, ShouldEqual, 0)
					So(cc.State, ShouldEqual, "rest")
				}
			})
		})
	})
}

func TestFirstMatchWins(t *testing.T) {
	Convey("Given two classes that exit on the same frame", t, func() {
		ctx := context.Background()
		var events []model.RepEvent
		c := newController(session.WithRepHandler(func(_ context.Context, ev model.RepEvent) {
			events = append(events, ev)
		}), session.WithID("s-1"))

		both := func(v float64) model.ConfidenceMap {
			return model.ConfidenceMap{validate.SquatsClass: v, validate.FrontRaiseClass: v}
		}
		for i := 0; i < 3; i++ {
			c.Process(ctx, frame(t0.Add(time.Duration(i)*time.Second), anyPose(), both(6)))
		}

		Convey("When both exit together", func() {
			labels := c.Process(ctx, frame(t0.Add(3*time.Second), anyPose(), both(1)))

			Convey("Then the earlier counter wins and later ones are not fed", func() {
				So(labels[0], ShouldEqual, "squats_down : 1 reps")
				counts := c.Counts()
				So(counts[1], ShouldResemble, session.ClassCount{Class: validate.SquatsClass, Reps: 1, State: "rest"})
				So(counts[2], ShouldResemble, session.ClassCount{Class: validate.FrontRaiseClass, Reps: 0, State: "entered"})
			})

			Convey("And the deferred counter counts on the following frame", func() {
				labels := c.Process(ctx, frame(t0.Add(4*time.Second), anyPose(), both(1)))
				So(labels[0], ShouldEqual, "front_raise_down : 1 reps")
			})

			Convey("And a rep event is emitted for the winner", func() {
				So(events, ShouldHaveLength, 1)
				So(events[0].SessionID, ShouldEqual, "s-1")
				So(events[0].ClassName, ShouldEqual, validate.SquatsClass)
				So(events[0].Count, ShouldEqual, 1)
				So(events[0].Timestamp, ShouldEqual, t0.Add(3*time.Second))
				So(events[0].ID, ShouldNotBeEmpty)
			})
		})
	})
}

func TestTopClassLabel(t *testing.T) {
	Convey("Given frames with several raw confidences", t, func() {
		ctx := context.Background()

		Convey("When the controller is in single-shot mode", func() {
			c := newController(session.WithStreamMode(false))
			labels := c.Process(ctx, frame(t0, anyPose(), model.ConfidenceMap{
				validate.SquatsClass:  7,
				validate.PushupsClass: 3,
			}))

			Convey("Then only the top class is reported", func() {
				So(labels, ShouldResemble, []string{"squats_down : 0.70 confidence"})
				So(c.Counts(), ShouldBeEmpty)
			})

			Convey("And frames without landmarks produce no labels", func() {
				So(c.Process(ctx, frame(t0, nil, model.ConfidenceMap{validate.SquatsClass: 7})), ShouldBeEmpty)
			})

			Convey("And a pose without confidences produces no labels", func() {
				So(c.Process(ctx, frame(t0, anyPose(), nil)), ShouldBeEmpty)
			})
		})

		Convey("When a custom confidence range is configured", func() {
			c := newController(session.WithStreamMode(false), session.WithConfidenceRange(5))
			labels := c.Process(ctx, frame(t0, anyPose(), model.ConfidenceMap{validate.HipThrustClass: 4}))

			Convey("Then the raw score is divided by it", func() {
				So(labels, ShouldResemble, []string{"hip_thrust_down : 0.80 confidence"})
			})
		})
	})
}

func TestResetAndStats(t *testing.T) {
	Convey("Given a controller with counts", t, func() {
		ctx := context.Background()
		now := t0
		c := newController(session.WithClock(func() time.Time { return now }))
		for _, v := range []float64{6, 6, 6, 1} {
			now = now.Add(time.Second)
			c.Process(ctx, frame(time.Time{}, anyPose(), model.ConfidenceMap{validate.WindmillLeftClass: v}))
		}

		Convey("Then frames without timestamps use the clock", func() {
			So(c.Label(), ShouldEqual, "windmill_left : 1 reps")
			stats := c.Stats()
			So(stats.Frames, ShouldEqual, 4)
			So(stats.StreamMode, ShouldBeTrue)
			So(stats.Counts, ShouldHaveLength, len(session.DefaultCounterClasses))
		})

		Convey("When reset", func() {
			c.Reset(ctx)

			Convey("Then counts, label and streak start over", func() {
				So(c.Label(), ShouldEqual, session.InitialLabel)
				So(c.Streak(), ShouldEqual, 0)
				So(c.Last(), ShouldBeEmpty)
				for _, cc := range c.Counts() {
					So(cc.Reps, ShouldEqual, 0)
					So(cc.State, ShouldEqual, "rest")
				}
			})
		})
	})
}

func TestControllerConfig(t *testing.T) {
	Convey("Given controller options", t, func() {
		Convey("When thresholds are inverted", func() {
			_, err := session.New(session.WithThresholds(repcount.Table{
				Default: repcount.Thresholds{Enter: 1, Exit: 3},
			}))

			Convey("Then New fails", func() {
				So(errors.Is(err, session.ErrInvalidConfig), ShouldBeTrue)
				So(errors.Is(err, repcount.ErrInvalidThresholds), ShouldBeTrue)
			})
		})

		Convey("When a custom counter order is given", func() {
			c, err := session.New(session.WithCounterClasses([]string{"lunges_down"}))

			Convey("Then only those classes are tracked", func() {
				So(err, ShouldBeNil)
				So(c.Counts(), ShouldResemble, []session.ClassCount{{Class: "lunges_down", State: "rest"}})
			})
		})

		Convey("When no id is supplied", func() {
			a, _ := session.New()
			b, _ := session.New()

			Convey("Then each controller gets a distinct id", func() {
				So(a.ID(), ShouldNotBeEmpty)
				So(a.ID(), ShouldNotEqual, b.ID())
			})
		})
	})
}

func TestReentrantUsePanics(t *testing.T) {
	Convey("Given a rep handler that calls back into the controller", t, func() {
		ctx := context.Background()
		var c *session.Controller
		c = newController(session.WithRepHandler(func(ctx context.Context, _ model.RepEvent) {
			c.Process(ctx, frame(t0, anyPose(), nil))
		}))
		for i := 0; i < 3; i++ {
			c.Process(ctx, frame(t0.Add(time.Duration(i)*time.Second), anyPose(), model.ConfidenceMap{validate.PushupsClass: 6}))
		}

		Convey("Then the nested call panics", func() {
			So(func() {
				c.Process(ctx, frame(t0.Add(5*time.Second), anyPose(), model.ConfidenceMap{validate.PushupsClass: 1}))
			}, ShouldPanic)
		})

		Convey("And the controller is usable afterwards", func() {
			func() {
				defer func() { _ = recover() }()
				c.Process(ctx, frame(t0.Add(5*time.Second), anyPose(), model.ConfidenceMap{validate.PushupsClass: 1}))
			}()
			So(func() { c.Reset(ctx) }, ShouldNotPanic)
		})
	})
}

func TestRepLogFields(t *testing.T) {
	Convey("Given a controller logging JSON under the session name", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithOutput(&buf), logger.WithJSON(true)), ShouldBeNil)
		defer func() { _ = logger.Init() }()

		ctx := context.Background()
		c := newController(session.WithLogger(logger.Get().Named("session")))

		Convey("When a repetition is counted and the session reset", func() {
			for i, v := range []float64{6, 6, 6, 1} {
				c.Process(ctx, frame(t0.Add(time.Duration(i)*time.Second), anyPose(), model.ConfidenceMap{validate.SquatsClass: v}))
			}
			c.Reset(ctx)

			Convey("Then the session id is logged once, as id", func() {
				var msgs []string
				for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
					var line map[string]any
					So(json.Unmarshal(raw, &line), ShouldBeNil)
					group, ok := line["session"].(map[string]any)
					So(ok, ShouldBeTrue)
					So(group["id"], ShouldEqual, c.ID())
					So(group, ShouldNotContainKey, "session")
					msgs = append(msgs, line["msg"].(string))
				}
				So(msgs, ShouldResemble, []string{"repetition counted", "session reset"})
			})
		})
	})
}
