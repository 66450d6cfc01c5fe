package ringbuffer

import "github.com/dpscience/ddrs4pals/internal/logger"

// GetLogger returns the ringbuffer package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("ringbuffer")
}
