package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics tracks catalog listings and the listing cache.
type CatalogMetrics struct {
	OperationsTotal *prometheus.CounterVec
	ListDuration    prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec
	ImagesGauge     *prometheus.GaugeVec
}

// NewCatalogMetrics creates and registers catalog metrics.
func NewCatalogMetrics(registry prometheus.Registerer) (*CatalogMetrics, error) {
	m := &CatalogMetrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeler_catalog_operations_total",
			Help: "Total number of catalog operations, including cache hits and misses.",
		}, []string{"operation", "status"}),
		ListDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "labeler_catalog_walk_duration_seconds",
			Help:    "Time spent walking the media root.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labeler_catalog_errors_total",
			Help: "Total number of catalog errors by type.",
		}, []string{"operation", "error_type"}),
		ImagesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "labeler_images",
			Help: "Number of images per category at the last count.",
		}, []string{"category"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register catalog metrics: %w", err)
	}
	return m, nil
}

// RecordOperation implements Recorder.
func (m *CatalogMetrics) RecordOperation(operation, status string) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *CatalogMetrics) RecordDuration(_ string, seconds float64) {
	m.ListDuration.Observe(seconds)
}

// RecordError implements Recorder.
func (m *CatalogMetrics) RecordError(operation, errorType string) {
	m.ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetCategoryCount publishes the latest image count of a category.
func (m *CatalogMetrics) SetCategoryCount(category string, n int) {
	m.ImagesGauge.WithLabelValues(category).Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *CatalogMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	ch <- m.ListDuration.Desc()
	m.ErrorsTotal.Describe(ch)
	m.ImagesGauge.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *CatalogMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	ch <- m.ListDuration
	m.ErrorsTotal.Collect(ch)
	m.ImagesGauge.Collect(ch)
}
