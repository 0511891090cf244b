package config_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/okian/cadenza/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the evaluation defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.JobQueueSize, convey.ShouldEqual, 1_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.UploadAttempts, convey.ShouldEqual, 3)
			convey.So(cfg.UploadBaseDelayMS, convey.ShouldEqual, 1_000)
			convey.So(cfg.PollAttempts, convey.ShouldEqual, 120)
			convey.So(cfg.PollIntervalMS, convey.ShouldEqual, 2_000)
			convey.So(cfg.NotReadySignature, convey.ShouldEqual, "evaluation not completed")
			convey.So(cfg.StorageBackend, convey.ShouldEqual, config.StorageFS)
		})

		convey.Convey("Then it should start in demo mode", func() {
			convey.So(cfg.DemoMode(), convey.ShouldBeTrue)
			cfg.ScorerURL = "http://scorer:8000"
			convey.So(cfg.DemoMode(), convey.ShouldBeFalse)
		})

		convey.Convey("Then the defaults should validate", func() {
			convey.So(cfg.Validate(context.Background()), convey.ShouldBeNil)
		})
	})
}
