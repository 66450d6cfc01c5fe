package observability

import "github.com/dpscience/ddrs4pals/internal/logger"

// GetLogger returns the telemetry endpoint logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
