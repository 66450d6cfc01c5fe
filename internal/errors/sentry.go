package errors

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error built while it is enabled.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

type reporterSlot struct{ r TelemetryReporter }

var reporter atomic.Pointer[reporterSlot]

// SetTelemetryReporter installs r as the process-wide reporter. nil removes it.
func SetTelemetryReporter(r TelemetryReporter) {
	if r == nil {
		reporter.Store(nil)
		return
	}
	reporter.Store(&reporterSlot{r: r})
}

// activeReporter returns the installed reporter when it is enabled.
func activeReporter() TelemetryReporter {
	slot := reporter.Load()
	if slot == nil || !slot.r.IsEnabled() {
		return nil
	}
	return slot.r
}

// SentryReporter sends scrubbed errors to Sentry.
type SentryReporter struct {
	enabled bool
}

func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

func (sr *SentryReporter) IsEnabled() bool { return sr.enabled }

// InitSentry configures the Sentry client and installs a SentryReporter. An
// empty DSN leaves telemetry off.
func InitSentry(dsn, release string) error {
	if dsn == "" {
		SetTelemetryReporter(nil)
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushSentry waits up to timeout for queued events.
func FlushSentry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// ReportError sends ee once.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}
	ee.MarkReported()

	title := errorTitle(ee)
	message := scrub(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	level := sentryLevel(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}

		extra := make(map[string]any, len(ee.Context))
		for k, v := range ee.Context {
			if s, ok := v.(string); ok {
				v = scrub(s)
			}
			extra[k] = v
		}
		scope.SetContext("error", extra)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Level = level
		event.Message = message
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})
}

var categoryTitles = map[ErrorCategory]string{
	CategoryValidation:    "Validation Error",
	CategoryConfiguration: "Configuration Error",
	CategoryFileIO:        "File I/O Error",
	CategoryNetwork:       "Network Error",
	CategorySystem:        "System Error",
	CategoryRingBuffer:    "Ring Buffer Error",
	CategoryAcquisition:   "Acquisition Error",
	CategoryCalibration:   "Calibration Error",
	CategoryEncoding:      "Encoding Error",
	CategoryForward:       "Forwarding Error",
	CategoryMQTT:          "Forwarding Error",
	CategoryKafka:         "Forwarding Error",
}

// errorTitle groups events in Sentry: "Forward: Forwarding Error (publish frame)".
func errorTitle(ee *EnhancedError) string {
	title, ok := categoryTitles[ee.Category]
	if !ok {
		title = string(ee.Category)
	}
	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		title = strings.ToUpper(c[:1]) + c[1:] + ": " + title
	}
	if op, _ := ee.Context["operation"].(string); op != "" {
		title += " (" + strings.ReplaceAll(op, "_", " ") + ")"
	}
	return title
}

func sentryLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryTimeout, CategoryCancellation:
		return sentry.LevelInfo
	case CategoryNetwork, CategoryForward, CategoryMQTT, CategoryKafka, CategoryFileIO:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}
