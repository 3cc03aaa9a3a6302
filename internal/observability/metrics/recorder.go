// Package metrics provides custom Prometheus metrics for the labeler components.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction rather than concrete collectors so
// tests can substitute TestRecorder and metrics can be switched off.
type Recorder interface {
	// RecordOperation records an operation with its outcome, e.g. ("mark_valid", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its category.
	RecordError(operation, errorType string)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordOperation(string, string) {}
func (NoOpRecorder) RecordDuration(string, float64) {}
func (NoOpRecorder) RecordError(string, string)     {}

// OrNoOp returns r, or a NoOpRecorder when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NoOpRecorder{}
	}
	return r
}
