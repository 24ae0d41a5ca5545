// Package telemetry holds the process-wide Prometheus collectors for
// batch execution.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for scenario status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	scenariosTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoscen_scenarios_total",
			Help: "Total number of scenario rows executed.",
		},
		[]string{"status"},
	)

	scenarioDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoscen_scenario_duration_seconds",
			Help:    "Wall time to parameterize, run and extract one scenario row, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoscen_batch_duration_seconds",
			Help:    "Wall time to execute a full scenario batch, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecoscen_active_workers",
			Help: "Number of workers currently executing scenario partitions.",
		},
	)

	modelCopyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecoscen_model_copy_seconds",
			Help:    "Duration of per-worker model file copies, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(scenariosTotal)
	prometheus.MustRegister(scenarioDuration)
	prometheus.MustRegister(batchDuration)
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(modelCopyDuration)

	// Pre-initialize label combinations so they appear in /metrics with
	// value 0 from startup, rather than only after first observation.
	scenariosTotal.WithLabelValues(StatusCompleted)
	scenariosTotal.WithLabelValues(StatusFailed)
}

// ScenarioCompleted records one finished scenario row.
func ScenarioCompleted(seconds float64) {
	scenariosTotal.WithLabelValues(StatusCompleted).Inc()
	scenarioDuration.Observe(seconds)
}

// ScenarioFailed records one failed scenario row.
func ScenarioFailed(seconds float64) {
	scenariosTotal.WithLabelValues(StatusFailed).Inc()
	scenarioDuration.Observe(seconds)
}

// BatchFinished records the wall time of one whole batch.
func BatchFinished(seconds float64) {
	batchDuration.Observe(seconds)
}

// WorkerStarted and WorkerStopped track the active worker gauge.
func WorkerStarted() { activeWorkers.Inc() }

// WorkerStopped decrements the active worker gauge.
func WorkerStopped() { activeWorkers.Dec() }

// ModelCopied records the duration of one model file copy.
func ModelCopied(seconds float64) {
	modelCopyDuration.Observe(seconds)
}
