// Package logger is the module-aware structured logger of ddrs4pals, built on
// log/slog.
//
// Packages keep a module logger and log with typed fields:
//
//	log := logger.Global().Module("forward")
//	log.Warn("publish failed",
//	    logger.String("sink", sink.Name()),
//	    logger.Error(err))
//
// The console gets text without timestamps. The optional log file gets JSON
// with RFC3339 timestamps and is rotated by lumberjack. Levels can be set per
// module:
//
//	main:
//	  log:
//	    default_level: info
//	    module_levels:
//	      ringbuffer: debug
//
// Tests capture output with NewSlogLogger(buf, logger.LogLevelDebug, time.UTC).
package logger

import (
	"time"
	"unique"
)

type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger is implemented by module loggers. Safe for concurrent use.
type Logger interface {
	Module(name string) Logger
	With(fields ...Field) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	Flush() error
}

// Field is one structured key/value pair. Keys are interned, the same few
// keys repeat on every event.
type Field struct {
	Key   string
	Value any
}

var (
	errorKey  = unique.Make("error").Value()
	moduleKey = unique.Make("module").Value()
)

func field(key string, value any) Field {
	return Field{Key: unique.Make(key).Value(), Value: value}
}

func String(key, value string) Field        { return field(key, value) }
func Int(key string, value int) Field       { return field(key, value) }
func Int64(key string, value int64) Field   { return field(key, value) }
func Uint64(key string, value uint64) Field { return field(key, value) }
func Bool(key string, value bool) Field     { return field(key, value) }

// Float64 values are rounded to three decimals on output.
func Float64(key string, value float64) Field { return field(key, value) }

// Duration is rendered as a string such as "1.5s".
func Duration(key string, value time.Duration) Field { return field(key, value.String()) }

// Any takes values without a typed constructor, e.g. a list of brokers.
func Any(key string, value any) Field { return field(key, value) }

// Error stores err's message under "error". A nil error gives a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey}
	}
	return Field{Key: errorKey, Value: err.Error()}
}
