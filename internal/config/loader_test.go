package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/okian/repsense/internal/config"
	"github.com/okian/repsense/internal/domain/repcount"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.MinValidPoseFrames, convey.ShouldEqual, 3)
				convey.So(cfg.StoreDSN, convey.ShouldEqual, "")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("REPSENSE_ADDR", ":8080")
			_ = os.Setenv("REPSENSE_STREAM_MODE", "false")
			_ = os.Setenv("REPSENSE_SMOOTHING_ALPHA", "0.5")
			_ = os.Setenv("REPSENSE_MIN_REP_INTERVAL_MS", "750")
			_ = os.Setenv("REPSENSE_COUNTER_CLASSES", "squats_down,pushups_down")
			_ = os.Setenv("REPSENSE_DEFAULT_THRESHOLDS__ENTER", "6")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StreamMode, convey.ShouldBeFalse)
				convey.So(cfg.SmoothingAlpha, convey.ShouldEqual, 0.5)
				convey.So(cfg.MinRepIntervalMS, convey.ShouldEqual, 750)
				convey.So(cfg.CounterClasses, convey.ShouldResemble, []string{"squats_down", "pushups_down"})
				convey.So(cfg.DefaultThresholds, convey.ShouldResemble, repcount.Thresholds{Enter: 6, Exit: 2})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
smoothing_window: 1
store_dsn: "reps.db"
class_thresholds:
  squats_down:
    enter: 7
    exit: 3
validators:
  pushup:
    min_confidence: 0.5
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("REPSENSE_CONFIG", tmpFile)
			_ = os.Setenv("REPSENSE_SMOOTHING_WINDOW", "4")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values merge with defaults and env wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.SmoothingWindow, convey.ShouldEqual, 4)
				convey.So(cfg.StoreDSN, convey.ShouldEqual, "reps.db")
				convey.So(cfg.Thresholds().For("squats_down"), convey.ShouldResemble, repcount.Thresholds{Enter: 7, Exit: 3})
				convey.So(cfg.Thresholds().For("pushups_down"), convey.ShouldResemble, repcount.Thresholds{Enter: 5, Exit: 3})
				convey.So(*cfg.Validators["pushup"].MinConfidence, convey.ShouldEqual, 0.5)
				convey.So(cfg.Validators["pushup"].Tolerance, convey.ShouldBeNil)
			})
		})

		convey.Convey("When an explicit path is given", func() {
			tmpFile := createTempConfigFile("addr: \":7070\"\n")
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, config.WithPath(tmpFile))

			convey.Convey("Then it is used without REPSENSE_CONFIG", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, config.WithPath(tmpFile))

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.Load(ctx, config.WithPath("/non/existent/repsense.yaml"))

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid values", func() {
			_ = os.Setenv("REPSENSE_SMOOTHING_ALPHA", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("REPSENSE_WORKER_COUNT", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "REPSENSE_") {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "repsense-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
