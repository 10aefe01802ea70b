package worker

import (
	"feedmesh/internal/pkg/config"
	"fmt"
	"log/slog"
)

// WorkerConfig holds the cmd-level configuration for the worker process:
// notification fan-out concurrency, the health check port, and how long to
// wait for migrations to finish before the scheduler starts pulling sources.
// The scheduling cadence itself (poll interval, fetch concurrency, backoff)
// lives in scheduler.Config and pipeline.Config, loaded separately — this
// struct only covers the concerns that sit above those two components.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// All fields have sensible defaults and validation rules to ensure
// the worker can operate safely even with invalid or missing configuration.
type WorkerConfig struct {
	// NotifyMaxConcurrent is the maximum number of concurrent notification
	// dispatches the digest consumer's worker pool allows.
	// Range: 1-100
	// Default: 10
	NotifyMaxConcurrent int

	// HealthPort is the port number for the health check HTTP server.
	// Range: 1024-65535 (avoid privileged ports)
	// Default: 9091
	HealthPort int

	// MigrationWaitAttempts bounds how many times the worker probes the
	// database for a migrated schema before giving up at startup.
	// Default: 10
	MigrationWaitAttempts int
}

// DefaultConfig returns a WorkerConfig with sensible default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		NotifyMaxConcurrent:   10,
		HealthPort:            9091,
		MigrationWaitAttempts: 10,
	}
}

// Validate checks if the configuration values are valid, collecting and
// returning every violation together rather than failing on the first one.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateIntRange(c.NotifyMaxConcurrent, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("notify max concurrent: %w", err))
	}

	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if err := config.ValidateIntRange(c.MigrationWaitAttempts, 1, 100); err != nil {
		errs = append(errs, fmt.Errorf("migration wait attempts: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}

	return nil
}

// LoadConfigFromEnv loads worker configuration from environment variables
// with validation and automatic fallback to default values on failure.
//
// This function implements the fail-open strategy:
//  1. Start with DefaultConfig() as base
//  2. Load each field from environment variables
//  3. Validate each loaded value
//  4. If validation fails: use default value, log warning, increment metrics
//  5. Never return error - always return a valid configuration
//
// Environment variables:
//   - NOTIFY_MAX_CONCURRENT: Integer 1-100 (default: 10)
//   - WORKER_HEALTH_PORT: Integer 1024-65535 (default: 9091)
//   - MIGRATION_WAIT_ATTEMPTS: Integer 1-100 (default: 10)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	result := config.LoadEnvInt("NOTIFY_MAX_CONCURRENT", cfg.NotifyMaxConcurrent, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.NotifyMaxConcurrent = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("notify_max_concurrent")
		metrics.RecordFallback("notify_max_concurrent", "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "NotifyMaxConcurrent"),
				slog.String("warning", warning))
		}
	}

	result = config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("health_port")
		metrics.RecordFallback("health_port", "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "HealthPort"),
				slog.String("warning", warning))
		}
	}

	result = config.LoadEnvInt("MIGRATION_WAIT_ATTEMPTS", cfg.MigrationWaitAttempts, func(v int) error {
		return config.ValidateIntRange(v, 1, 100)
	})
	cfg.MigrationWaitAttempts = result.Value.(int)
	if result.FallbackApplied {
		fallbackApplied = true
		metrics.RecordValidationError("migration_wait_attempts")
		metrics.RecordFallback("migration_wait_attempts", "default")
		for _, warning := range result.Warnings {
			logger.Warn("Configuration fallback applied",
				slog.String("field", "MigrationWaitAttempts"),
				slog.String("warning", warning))
		}
	}

	metrics.SetFallbackActive("", fallbackApplied)
	metrics.RecordLoadTimestamp()

	return &cfg, nil
}
