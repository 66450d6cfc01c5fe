// Package errors provides the error builder used across the acquisition core.
// Errors carry a component, a category and free-form context, and are handed
// to an optional telemetry reporter when they are built.
package errors

import (
	"fmt"
	"maps"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for reporting and filtering.
type ErrorCategory string

const (
	CategoryGeneric       ErrorCategory = "generic"
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryNetwork       ErrorCategory = "network"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryLimit         ErrorCategory = "limit"
	CategoryResource      ErrorCategory = "resource"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"

	CategoryRingBuffer  ErrorCategory = "ring-buffer"
	CategoryAcquisition ErrorCategory = "acquisition"
	CategoryCalibration ErrorCategory = "calibration"
	CategoryEncoding    ErrorCategory = "encoding"
	CategoryForward     ErrorCategory = "forward"
	CategoryMQTT        ErrorCategory = "mqtt-publish"
	CategoryKafka       ErrorCategory = "kafka-send"
)

// Priorities accepted by ErrorBuilder.Priority.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with a component, a category and context.
// It is immutable once built, except for the reported flag.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	component string
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category and otherwise defers to the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component that produced the error.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetPriority returns the explicit priority, or "" when none was set.
func (ee *EnhancedError) GetPriority() string { return ee.Priority }

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that telemetry has seen this error.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether telemetry has seen this error.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts a builder around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts a builder around a formatted error.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component. Without it the component is detected from
// the call stack when a reporter is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority overrides the reporting priority. Unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context adds one key to the error context.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	eb.set(key, value)
	return eb
}

// BufferContext records ring buffer geometry. Zero values are left out.
func (eb *ErrorBuilder) BufferContext(handle, capacity, maxEventSize int) *ErrorBuilder {
	if handle != 0 {
		eb.set("handle", handle)
	}
	if capacity > 0 {
		eb.set("capacity", capacity)
	}
	if maxEventSize > 0 {
		eb.set("max_event_size", maxEventSize)
	}
	return eb
}

// NetworkContext records the kind of endpoint and the timeout. The URL itself
// is never stored.
func (eb *ErrorBuilder) NetworkContext(url string, timeout time.Duration) *ErrorBuilder {
	if url != "" {
		eb.set("url_category", categorizeURL(url))
	}
	if timeout > 0 {
		eb.set("timeout_seconds", timeout.Seconds())
	}
	return eb
}

func (eb *ErrorBuilder) set(key string, value any) {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
}

// Build returns the error and hands it to the telemetry reporter, if any.
func (eb *ErrorBuilder) Build() *EnhancedError {
	r := activeReporter()

	component := eb.component
	if component == "" && r != nil {
		component = detectComponent()
	}
	if component == "" {
		component = ComponentUnknown
	}

	category := eb.category
	if category == "" {
		if r != nil {
			category = detectCategory(eb.err, component)
		} else {
			category = CategoryGeneric
		}
	}

	ee := &EnhancedError{
		Err:       eb.err,
		Category:  category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: component,
	}
	if r != nil {
		r.ReportError(ee)
	}
	return ee
}
