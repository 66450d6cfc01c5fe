// env.go - Environment variable configuration and validation for ddrs4pals
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the environment variables that get validated before use.
// Every other key is still overridable through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", envPrefix + "_DEBUG", validateEnvBool},

		// Ring buffer sizing
		{"ringbuffer.capacity", envPrefix + "_RINGBUFFER_CAPACITY", validateEnvPositiveInt},
		{"ringbuffer.maxeventsize", envPrefix + "_RINGBUFFER_MAXEVENTSIZE", validateEnvNonNegativeInt},
		{"ringbuffer.maxbuffers", envPrefix + "_RINGBUFFER_MAXBUFFERS", validateEnvPositiveInt},

		// Acquisition
		{"acquisition.eventrate", envPrefix + "_ACQUISITION_EVENTRATE", validateEnvNonNegativeFloat},
		{"acquisition.lockosthread", envPrefix + "_ACQUISITION_LOCKOSTHREAD", validateEnvBool},

		// Forwarding
		{"forward.sink", envPrefix + "_FORWARD_SINK", validateEnvSink},
		{"forward.mqtt.broker", envPrefix + "_FORWARD_MQTT_BROKER", validateEnvURL},
		{"forward.mqtt.password", envPrefix + "_FORWARD_MQTT_PASSWORD", nil},
		{"forward.mqtt.passwordfile", envPrefix + "_FORWARD_MQTT_PASSWORDFILE", nil},

		// Telemetry
		{"telemetry.sentry.dsn", envPrefix + "_TELEMETRY_SENTRY_DSN", validateEnvURL},
		{"telemetry.sentry.dsnfile", envPrefix + "_TELEMETRY_SENTRY_DSNFILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

// envNumber parses value and checks it against floor. strict excludes floor itself.
func envNumber[T int | float64](parse func(string) (T, error), floor T, strict bool) func(string) error {
	return func(value string) error {
		n, err := parse(value)
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if n < floor || (strict && n == floor) {
			if strict {
				return fmt.Errorf("must be greater than %v", floor)
			}
			return fmt.Errorf("must not be below %v", floor)
		}
		return nil
	}
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

var (
	validateEnvPositiveInt      = envNumber(strconv.Atoi, 0, true)
	validateEnvNonNegativeInt   = envNumber(strconv.Atoi, 0, false)
	validateEnvNonNegativeFloat = envNumber(parseFloat, 0, false)
)

func validateEnvSink(value string) error {
	switch value {
	case SinkWriter, SinkMemory, SinkMQTT, SinkKafka:
		return nil
	default:
		return fmt.Errorf("must be one of %s, %s, %s, %s", SinkWriter, SinkMemory, SinkMQTT, SinkKafka)
	}
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL needs a scheme and a host")
	}
	return nil
}
