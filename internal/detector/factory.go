package detector

import (
	"fmt"
	"time"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/httpclient"
	"github.com/platelab/labeler/internal/observability/metrics"
)

// Backend names accepted by New.
const (
	BackendNone   = "none"
	BackendTFLite = "tflite"
	BackendHTTP   = "http"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string
	ModelPath string        // tflite
	Threads   int           // tflite; 0 picks the physical core count
	URL       string        // http
	Timeout   time.Duration // http
	Recorder  metrics.Recorder

	// Client overrides the HTTP client of the http backend.
	Client *httpclient.Client
}

// New creates the backend named by cfg.Backend. An empty backend means none.
func New(cfg Config) (Detector, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return None{}, nil
	case BackendTFLite:
		return NewTFLite(cfg.ModelPath, cfg.Threads, cfg.Recorder)
	case BackendHTTP:
		client := cfg.Client
		if client == nil {
			client = httpclient.New(httpclient.Config{DefaultTimeout: cfg.Timeout})
		}
		return NewRemote(cfg.URL, client)
	default:
		return nil, errors.New(fmt.Errorf("unknown detector backend %q", cfg.Backend)).
			Component("detector").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
