package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "time/tzdata"

	"gopkg.in/natefinch/lumberjack.v2"
)

var global atomic.Pointer[CentralLogger]

// fallback serves Global before SetGlobal. It writes to stderr so nothing
// lands in a stream written to stdout.
var fallback = sync.OnceValue(func() *CentralLogger {
	return &CentralLogger{
		defaultLevel: slog.LevelInfo,
		handler:      newTextHandler(os.Stderr, slog.LevelInfo),
	}
})

// SetGlobal installs cl as the process-wide logger. Called once after the
// configuration is loaded.
func SetGlobal(cl *CentralLogger) {
	global.Store(cl)
}

// Global returns the process-wide logger, or a console fallback when none
// has been installed.
func Global() *CentralLogger {
	if cl := global.Load(); cl != nil {
		return cl
	}
	return fallback()
}

// CentralLogger routes module loggers to the console and the rotated log file.
type CentralLogger struct {
	handler      slog.Handler
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level

	mu   sync.Mutex
	file *lumberjack.Logger // nil unless file output is enabled
}

// NewCentralLogger builds the handlers described by cfg.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	var handlers []slog.Handler
	if c := cfg.Console; c.Enabled {
		var w io.Writer = os.Stdout
		if c.Stderr {
			w = os.Stderr
		}
		handlers = append(handlers, newTextHandler(w, parseLogLevel(c.Level)))
	}
	if fo := cfg.FileOutput; fo != nil && fo.Enabled {
		if dir := filepath.Dir(fo.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		cl.file = &lumberjack.Logger{
			Filename:   fo.Path,
			MaxSize:    fo.MaxSize,
			MaxAge:     fo.MaxAge,
			MaxBackups: fo.MaxRotatedFiles,
			Compress:   fo.Compress,
			LocalTime:  tz != time.UTC,
		}
		handlers = append(handlers, newJSONHandler(cl.file, parseLogLevel(fo.Level), tz))
	}

	switch len(handlers) {
	case 0:
		cl.handler = slog.DiscardHandler
	case 1:
		cl.handler = handlers[0]
	default:
		cl.handler = newMultiWriterHandler(handlers...)
	}
	return cl, nil
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// Module returns a logger for one package. Its level comes from
// module_levels, falling back to the default level.
func (cl *CentralLogger) Module(name string) Logger {
	level, ok := cl.moduleLevels[name]
	if !ok {
		level = cl.defaultLevel
	}
	return &moduleLogger{
		module: name,
		sl:     slog.New(cl.handler),
		level:  level,
	}
}

// Close closes the log file, if any.
func (cl *CentralLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Rotate starts a new log file.
func (cl *CentralLogger) Rotate() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.file == nil {
		return nil
	}
	return cl.file.Rotate()
}

// Flush exists for symmetry with Close; lumberjack writes through.
func (cl *CentralLogger) Flush() error { return nil }
