package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRefreshRunsTotal          = "signal_refresh_runs_total"
	MetricRefreshErrorsTotal        = "signal_refresh_errors_total"
	MetricRefreshDuration           = "signal_refresh_duration_seconds"
	MetricRefreshLastRunTimestamp   = "signal_refresh_last_run_timestamp"
	MetricRefreshLastRowsUpdated    = "signal_refresh_last_rows_updated"
	MetricRefreshRowsTotal          = "signal_refresh_rows_total"
	MetricRefreshProcedureDisagreed = "signal_refresh_procedure_disagreements_total"
)

// Row outcome labels for MetricRefreshRowsTotal.
const (
	RowOutcomeWithSignals         = "with_signals"
	RowOutcomeNoSignals           = "no_signals"
	RowOutcomeInsufficientHistory = "insufficient_history"
)

// Metrics contains Prometheus metrics for the refresh pipeline.
// All operations are thread-safe.
type Metrics struct {
	runsTotal          prometheus.Counter
	errorsTotal        prometheus.Counter
	duration           prometheus.Histogram
	lastRunTimestamp   prometheus.Gauge
	lastRowsUpdated    prometheus.Gauge
	rowsTotal          *prometheus.CounterVec
	procedureDisagreed prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRefreshRunsTotal,
			Help: "Total number of completed signal refresh runs",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRefreshErrorsTotal,
			Help: "Total number of signal refresh runs aborted by an error",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRefreshDuration,
			Help:    "Histogram of signal refresh run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRefreshLastRunTimestamp,
			Help: "Unix timestamp of the last completed signal refresh run",
		}),
		lastRowsUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRefreshLastRowsUpdated,
			Help: "Rows reported updated by the last completed signal refresh run",
		}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRefreshRowsTotal,
			Help: "Total number of rows written by the fallback pass by outcome",
		}, []string{"outcome"}),
		procedureDisagreed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRefreshProcedureDisagreed,
			Help: "Runs where the store procedure and the fallback pass reported different row counts",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRuns increments the completed runs counter.
func (m *Metrics) IncRuns() {
	m.runsTotal.Inc()
}

// IncErrors increments the aborted runs counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// ObserveDuration records a run duration sample.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.duration.Observe(seconds)
}

// SetLastRun records the completion time and row count of a run.
func (m *Metrics) SetLastRun(unixSeconds float64, rowsUpdated int) {
	m.lastRunTimestamp.Set(unixSeconds)
	m.lastRowsUpdated.Set(float64(rowsUpdated))
}

// AddRows adds n rows to the counter for outcome.
func (m *Metrics) AddRows(outcome string, n int64) {
	if n <= 0 {
		return
	}
	m.rowsTotal.WithLabelValues(outcome).Add(float64(n))
}

// IncProcedureDisagreement counts a run whose two passes disagreed.
func (m *Metrics) IncProcedureDisagreement() {
	m.procedureDisagreed.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.errorsTotal,
		m.duration,
		m.lastRunTimestamp,
		m.lastRowsUpdated,
		m.rowsTotal,
		m.procedureDisagreed,
	}
}
