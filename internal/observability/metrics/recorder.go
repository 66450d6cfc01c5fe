// Package metrics provides custom Prometheus metrics for the ddrs4pals acquisition core.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on this abstraction so tests can supply a fake.
type Recorder interface {
	// RecordOperation records an operation with its status,
	// e.g. ("produce", "success") or ("forward", "error").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type,
	// e.g. ("decode", "validation").
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string) {}
