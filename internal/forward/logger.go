package forward

import "github.com/dpscience/ddrs4pals/internal/logger"

// GetLogger returns the forward package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("forward")
}
