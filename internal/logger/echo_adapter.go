package logger

import (
	"bytes"
	"fmt"
	"io"

	echo_log "github.com/labstack/gommon/log"
)

// EchoLoggerAdapter sends echo's internal logging (handler errors, server
// errors) through a module logger so it shares the console and log file
// outputs and their redaction.
//
//	router := echo.New()
//	router.Logger = logger.NewEchoLoggerAdapter(logger.Global().Module("telemetry"))
type EchoLoggerAdapter struct {
	logger Logger
}

// NewEchoLoggerAdapter wraps l. A nil l discards everything.
func NewEchoLoggerAdapter(l Logger) *EchoLoggerAdapter {
	if l == nil {
		l = NewSlogLogger(io.Discard, LogLevelInfo, nil)
	}
	return &EchoLoggerAdapter{logger: l}
}

func (a *EchoLoggerAdapter) log(level LogLevel, msg string) {
	a.logger.Log(level, RedactSensitiveData(msg))
}

func (a *EchoLoggerAdapter) logJSON(level LogLevel, j echo_log.JSON) {
	a.logger.Log(level, "echo event", Any("data", j))
}

// Output returns a writer that logs each write as one warning. Hand it to
// log.New for http.Server.ErrorLog.
func (a *EchoLoggerAdapter) Output() io.Writer { return serverLogWriter{a} }

// Outputs, prefixes, levels and headers come from the logging configuration.
func (a *EchoLoggerAdapter) SetOutput(io.Writer)   {}
func (a *EchoLoggerAdapter) Prefix() string        { return "" }
func (a *EchoLoggerAdapter) SetPrefix(string)      {}
func (a *EchoLoggerAdapter) Level() echo_log.Lvl   { return echo_log.INFO }
func (a *EchoLoggerAdapter) SetLevel(echo_log.Lvl) {}
func (a *EchoLoggerAdapter) SetHeader(string)      {}

func (a *EchoLoggerAdapter) Print(i ...any)               { a.log(LogLevelInfo, fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Printf(f string, args ...any) { a.log(LogLevelInfo, fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Printj(j echo_log.JSON)       { a.logJSON(LogLevelInfo, j) }
func (a *EchoLoggerAdapter) Debug(i ...any)               { a.log(LogLevelDebug, fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Debugf(f string, args ...any) { a.log(LogLevelDebug, fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Debugj(j echo_log.JSON)       { a.logJSON(LogLevelDebug, j) }
func (a *EchoLoggerAdapter) Info(i ...any)                { a.log(LogLevelInfo, fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Infof(f string, args ...any)  { a.log(LogLevelInfo, fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Infoj(j echo_log.JSON)        { a.logJSON(LogLevelInfo, j) }
func (a *EchoLoggerAdapter) Warn(i ...any)                { a.log(LogLevelWarn, fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Warnf(f string, args ...any)  { a.log(LogLevelWarn, fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Warnj(j echo_log.JSON)        { a.logJSON(LogLevelWarn, j) }
func (a *EchoLoggerAdapter) Error(i ...any)               { a.log(LogLevelError, fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Errorf(f string, args ...any) { a.log(LogLevelError, fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Errorj(j echo_log.JSON)       { a.logJSON(LogLevelError, j) }

// Fatal and Panic log at ERROR and panic. Nothing here calls os.Exit; the
// run command owns process shutdown.
func (a *EchoLoggerAdapter) Fatal(i ...any)               { a.fail(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Fatalf(f string, args ...any) { a.fail(fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Fatalj(j echo_log.JSON)       { a.fail(fmt.Sprint(j)) }
func (a *EchoLoggerAdapter) Panic(i ...any)               { a.fail(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Panicf(f string, args ...any) { a.fail(fmt.Sprintf(f, args...)) }
func (a *EchoLoggerAdapter) Panicj(j echo_log.JSON)       { a.fail(fmt.Sprint(j)) }

func (a *EchoLoggerAdapter) fail(msg string) {
	msg = RedactSensitiveData(msg)
	a.logger.Error(msg)
	panic("echo: " + msg)
}

type serverLogWriter struct{ a *EchoLoggerAdapter }

func (w serverLogWriter) Write(p []byte) (int, error) {
	w.a.log(LogLevelWarn, string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
