package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/pacer/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.BacktestConcurrency, convey.ShouldEqual, 4)
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsRefreshMS, convey.ShouldEqual, 10_000)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given an unknown store driver", t, func() {
		cfg := config.New()
		cfg.StoreDriver = "postgres"
		convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given sqlite without a path", t, func() {
		cfg := config.New()
		cfg.StoreDriver = config.StoreSQLite
		cfg.StorePath = ""
		convey.So(cfg.Validate(), convey.ShouldNotBeNil)
	})

	convey.Convey("Given a non-positive metrics refresh interval", t, func() {
		cfg := config.New()
		cfg.MetricsRefreshMS = 0
		convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given broken coefficients", t, func() {
		cfg := config.New()
		cfg.Coefficients.Fusion.AgreementScale = 0
		convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
	})
}
