package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"
)

type moduleLogger struct {
	module string
	sl     *slog.Logger // carries the fields added by With
	level  slog.Level
}

// NewSlogLogger returns a JSON logger writing to w, for tests and tools that
// capture output.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	if tz == nil {
		tz = time.UTC
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		sl:    slog.New(newJSONHandler(w, lvl, tz)),
		level: lvl,
	}
}

// Module returns a child logger named "parent.name" that keeps the fields.
func (m *moduleLogger) Module(name string) Logger {
	if m.module != "" {
		name = m.module + "." + name
	}
	return &moduleLogger{module: name, sl: m.sl, level: m.level}
}

func (m *moduleLogger) With(fields ...Field) Logger {
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = toAttr(f)
	}
	return &moduleLogger{module: m.module, sl: m.sl.With(args...), level: m.level}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(levelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.log(parseLogLevel(string(level)), msg, fields)
}

func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if level < m.level {
		return
	}
	var buf [8]slog.Attr
	attrs := buf[:0]
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range fields {
		attrs = append(attrs, toAttr(f))
	}
	m.sl.LogAttrs(context.Background(), level, msg, attrs...)
}

// toAttr maps a Field onto slog. Floats keep three decimals.
func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	default:
		return slog.Any(f.Key, v)
	}
}
