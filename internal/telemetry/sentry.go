// Package telemetry reports internal errors to Sentry. Reporting is opt-in:
// nothing is sent unless a DSN is configured.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/platelab/labeler/internal/errors"
	"github.com/platelab/labeler/internal/logger"
)

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// userFacing are categories caused by operator input, not by faults. They
// are answered with a 4xx and never reported.
var userFacing = map[errors.ErrorCategory]bool{
	errors.CategoryValidation:   true,
	errors.CategoryNotFound:     true,
	errors.CategoryConflict:     true,
	errors.CategoryCancellation: true,
}

// Options configures a SentryReporter.
type Options struct {
	DSN         string
	Release     string
	Environment string
	// Transport replaces the HTTP transport, e.g. with a MockTransport in tests.
	Transport sentry.Transport
}

// SentryReporter implements errors.TelemetryReporter on a dedicated Sentry hub.
type SentryReporter struct {
	hub *sentry.Hub

	mu      sync.Mutex
	enabled bool
}

// NewSentryReporter creates a reporter. An empty DSN yields a disabled reporter.
func NewSentryReporter(opts Options) (*SentryReporter, error) {
	if opts.DSN == "" {
		return &SentryReporter{}, nil
	}
	if opts.Environment == "" {
		opts.Environment = "production"
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Release:          opts.Release,
		Environment:      opts.Environment,
		SampleRate:       1.0,
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &SentryReporter{
		hub:     sentry.NewHub(client, sentry.NewScope()),
		enabled: true,
	}, nil
}

// Install creates a reporter from opts and registers it with the errors
// package. The returned reporter must be flushed on shutdown.
func Install(opts Options) (*SentryReporter, error) {
	r, err := NewSentryReporter(opts)
	if err != nil {
		return nil, err
	}
	if r.IsEnabled() {
		errors.SetTelemetryReporter(r)
		GetLogger().Info("error reporting enabled", logger.String("environment", opts.Environment))
	}
	return r, nil
}

// IsEnabled implements errors.TelemetryReporter.
func (r *SentryReporter) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// ReportError implements errors.TelemetryReporter. Errors caused by operator
// input are skipped; every error is sent at most once.
func (r *SentryReporter) ReportError(ee *errors.EnhancedError) {
	if ee == nil || !r.IsEnabled() || userFacing[ee.Category] || ee.IsReported() {
		return
	}
	ee.MarkReported()

	message := logger.RedactSensitiveData(ee.Error())
	title := fmt.Sprintf("%s: %s", ee.Component, ee.Category)

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		scope.SetFingerprint([]string{title})

		details := map[string]any{}
		for k, v := range ee.GetContext() {
			if logger.IsSensitiveKey(k) {
				continue
			}
			if s, ok := v.(string); ok {
				v = logger.RedactSensitiveData(s)
			}
			details[k] = v
		}
		if len(details) > 0 {
			scope.SetContext("error", details)
		}

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		r.hub.CaptureEvent(event)
	})
}

// Flush waits up to timeout for queued events to be sent and disables the reporter.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	r.mu.Lock()
	r.enabled = false
	r.mu.Unlock()
	if r.hub == nil {
		return true
	}
	return r.hub.Flush(timeout)
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
