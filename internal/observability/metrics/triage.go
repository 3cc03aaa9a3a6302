package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// TriageMetrics tracks file triage operations.
type TriageMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewTriageMetrics creates and registers triage metrics.
func NewTriageMetrics(registry prometheus.Registerer) (*TriageMetrics, error) {
	m := &TriageMetrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeler_triage_operations_total",
			Help: "Total number of triage operations by operation and status.",
		}, []string{"operation", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labeler_triage_operation_duration_seconds",
			Help:    "Duration of triage operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeler_triage_errors_total",
			Help: "Total number of failed triage operations by error type.",
		}, []string{"operation", "error_type"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register triage metrics: %w", err)
	}
	return m, nil
}

// RecordOperation implements Recorder.
func (m *TriageMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *TriageMetrics) RecordDuration(operation string, seconds float64) {
	m.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *TriageMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *TriageMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.ErrorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *TriageMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.ErrorsTotal.Collect(ch)
}
