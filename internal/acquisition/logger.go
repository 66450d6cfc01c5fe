package acquisition

import "github.com/dpscience/ddrs4pals/internal/logger"

// GetLogger returns the acquisition package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("acquisition")
}
