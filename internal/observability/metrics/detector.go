package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics tracks plate detection and crop rendering.
type DetectorMetrics struct {
	backend          string
	OperationsTotal  *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	ErrorsTotal      *prometheus.CounterVec
	ModelLoadedGauge prometheus.Gauge
}

// NewDetectorMetrics creates and registers detector metrics labelled with backend.
func NewDetectorMetrics(registry prometheus.Registerer, backend string) (*DetectorMetrics, error) {
	m := &DetectorMetrics{
		backend: backend,
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeler_detector_operations_total",
			Help: "Total number of detector pipeline operations by outcome.",
		}, []string{"backend", "operation", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labeler_detector_duration_seconds",
			Help:    "Duration of detector pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"backend", "operation"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeler_detector_errors_total",
			Help: "Total number of detector errors by type.",
		}, []string{"backend", "operation", "error_type"}),
		ModelLoadedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labeler_detector_model_loaded",
			Help: "1 when the detection model is loaded.",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detector metrics: %w", err)
	}
	return m, nil
}

// RecordOperation implements Recorder.
func (m *DetectorMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(m.backend, operation, status).Inc()
	if operation == OpModelLoad {
		if status == StatusSuccess {
			m.ModelLoadedGauge.Set(1)
		} else {
			m.ModelLoadedGauge.Set(0)
		}
	}
}

// RecordDuration implements Recorder.
func (m *DetectorMetrics) RecordDuration(operation string, seconds float64) {
	m.Duration.WithLabelValues(m.backend, operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *DetectorMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(m.backend, operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.Duration.Describe(ch)
	m.ErrorsTotal.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.Duration.Collect(ch)
	m.ErrorsTotal.Collect(ch)
	ch <- m.ModelLoadedGauge
}
