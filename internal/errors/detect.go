package errors

import (
	stderrors "errors"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/dpscience/ddrs4pals/"

// components maps package paths below the module to component names. The
// first matching prefix wins, so longer paths come first.
var components = []struct{ pkg, name string }{
	{"internal/observability", "observability"},
	{"internal/ringbuffer", "ringbuffer"},
	{"internal/acquisition", "acquisition"},
	{"internal/forward", "forward"},
	{"internal/monitor", "monitor"},
	{"internal/secrets", "configuration"},
	{"internal/conf", "configuration"},
	{"cmd/inspect", "inspect"},
	{"cmd/bench", "bench"},
	{"cmd/run", "run"},
}

// detectComponent walks the call stack up to the first frame outside this
// package that belongs to a known component.
func detectComponent() string {
	pcs := make([]uintptr, 24)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if name := componentOf(frame.Function); name != "" {
			return name
		}
		if !more {
			return ComponentUnknown
		}
	}
}

func componentOf(function string) string {
	path, ok := strings.CutPrefix(function, modulePrefix)
	if !ok || strings.HasPrefix(path, "internal/errors") {
		return ""
	}
	for _, c := range components {
		if strings.HasPrefix(path, c.pkg) {
			return c.name
		}
	}
	return ""
}

// detectCategory guesses a category from a wrapped EnhancedError, the message
// or, failing both, the component.
func detectCategory(err error, component string) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return CategoryTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "broker"):
		return CategoryNetwork
	case strings.Contains(msg, "file"), strings.Contains(msg, "open"):
		return CategoryFileIO
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"):
		return CategoryValidation
	}

	switch component {
	case "ringbuffer":
		return CategoryRingBuffer
	case "acquisition":
		return CategoryAcquisition
	case "forward":
		return CategoryForward
	case "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

// categorizeURL reduces a URL to its kind of endpoint.
func categorizeURL(url string) string {
	scheme, _, _ := strings.Cut(strings.ToLower(url), "://")
	switch scheme {
	case "tcp", "mqtt", "ws":
		return "mqtt-broker"
	case "ssl", "tls", "mqtts", "wss":
		return "mqtt-broker-tls"
	case "http":
		return "http-endpoint"
	case "https":
		return "https-endpoint"
	default:
		return "other-protocol"
	}
}
