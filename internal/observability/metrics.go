// Package observability provides metrics functionality for monitoring the labeler.
// Sentry-related error telemetry is handled in the telemetry package.
package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platelab/labeler/internal/logger"
	"github.com/platelab/labeler/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Triage   *metrics.TriageMetrics
	Catalog  *metrics.CatalogMetrics
	Detector *metrics.DetectorMetrics
	HTTP     *metrics.HTTPMetrics
}

// NewMetrics creates a registry with process and Go runtime collectors plus
// every labeler collector. backend labels the detector metrics.
func NewMetrics(backend string) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	triage, err := metrics.NewTriageMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create triage metrics: %w", err)
	}
	catalog, err := metrics.NewCatalogMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog metrics: %w", err)
	}
	detector, err := metrics.NewDetectorMetrics(registry, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector metrics: %w", err)
	}
	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Triage:   triage,
		Catalog:  catalog,
		Detector: detector,
		HTTP:     httpMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	errLog := slog.NewLogLogger(slog.NewTextHandler(logWriter{}, nil), slog.LevelError)
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      errLog,
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// logWriter forwards promhttp error output to the module logger.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	logger.Global().Module("observability").Error("metrics handler error", logger.String("detail", string(p)))
	return len(p), nil
}
