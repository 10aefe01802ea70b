package worker

import (
	"feedmesh/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the worker component.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// metrics for the continuously-running scheduler and the digest emit sweep,
// plus the manual trigger-now path exposed by cmd/trigger.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_validation_errors_total: Total validation errors by field
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
type WorkerMetrics struct {
	*config.ConfigMetrics

	// SweepEmitsTotal counts digests handed off to the notification consumer
	// by the pipeline's emit sweeper, labeled by aggregator kind.
	SweepEmitsTotal *prometheus.CounterVec

	// TriggerRunsTotal counts manual trigger-now runs by status (success/failure).
	TriggerRunsTotal *prometheus.CounterVec

	// TriggerDurationSeconds measures how long a trigger-now run took to fetch
	// every active source once.
	TriggerDurationSeconds prometheus.Histogram

	// TriggerLastSuccessTimestamp records the Unix timestamp of the last
	// successful trigger-now run.
	TriggerLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates a new WorkerMetrics instance with all metrics initialized.
// promauto registers every metric with the default Prometheus registry here, so
// calling it twice in one process panics on duplicate registration.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		SweepEmitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_sweep_emits_total",
			Help: "Total number of digests emitted by the aggregation sweeper, by aggregator kind",
		}, []string{"kind"}),

		TriggerRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_trigger_runs_total",
			Help: "Total number of manual trigger-now runs by status (success/failure)",
		}, []string{"status"}),

		TriggerDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_trigger_duration_seconds",
			Help:    "Duration of a trigger-now run in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		TriggerLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_trigger_last_success_timestamp",
			Help: "Unix timestamp of the last successful trigger-now run",
		}),
	}
}

// MustRegister is a no-op method for API compatibility.
// Metrics are automatically registered via promauto when created in NewWorkerMetrics.
func (m *WorkerMetrics) MustRegister() {
	// No-op: metrics are auto-registered via promauto
}

// RecordSweepEmit increments the emit counter for the given aggregator kind.
func (m *WorkerMetrics) RecordSweepEmit(kind string) {
	m.SweepEmitsTotal.WithLabelValues(kind).Inc()
}

// RecordTriggerRun increments the trigger-now run counter for the given status.
func (m *WorkerMetrics) RecordTriggerRun(status string) {
	m.TriggerRunsTotal.WithLabelValues(status).Inc()
}

// RecordTriggerDuration observes the duration of a trigger-now run, in seconds.
func (m *WorkerMetrics) RecordTriggerDuration(seconds float64) {
	m.TriggerDurationSeconds.Observe(seconds)
}

// RecordTriggerLastSuccess records the current time as the last successful
// trigger-now completion.
func (m *WorkerMetrics) RecordTriggerLastSuccess() {
	m.TriggerLastSuccessTimestamp.SetToCurrentTime()
}
