// Package config defines process configuration and its loading.
package config

import (
	"fmt"
	"runtime"

	"github.com/okian/pacer/internal/domain/coeffs"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the recalculation job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`

	// JobTimeoutMS bounds a single recalculation or backtest job.
	JobTimeoutMS int `koanf:"job_timeout_ms"`

	// BacktestConcurrency caps the months evaluated in parallel.
	BacktestConcurrency int `koanf:"backtest_concurrency"`

	// GeneratorTimeoutMS bounds each signal generator.
	GeneratorTimeoutMS int `koanf:"generator_timeout_ms"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshMS is how often background gauges are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`

	// StoreDriver selects memory or sqlite.
	StoreDriver string `koanf:"store_driver"`
	// StorePath is the sqlite database file.
	StorePath string `koanf:"store_path"`

	// Coefficients tunes every engine stage.
	Coefficients coeffs.Coefficients `koanf:"coefficients"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           1024,
		WorkerCount:         runtime.NumCPU(),
		JobTimeoutMS:        60_000,
		BacktestConcurrency: 4,
		GeneratorTimeoutMS:  5_000,
		MetricsEnabled:      true,
		MetricsRefreshMS:    10_000,
		StoreDriver:         StoreMemory,
		StorePath:           "pacer.db",
		Coefficients:        coeffs.Default(),
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.BacktestConcurrency <= 0:
		return fmt.Errorf("%w: backtest_concurrency must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	case c.JobTimeoutMS <= 0 || c.GeneratorTimeoutMS <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("%w: store_path required for sqlite", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if err := c.Coefficients.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
