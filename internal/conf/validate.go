// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateRingBufferSettings(&s.RingBuffer) },
		func(s *Settings) error { return validateAcquisitionSettings(&s.Acquisition) },
		func(s *Settings) error { return validateForwardSettings(&s.Forward) },
		func(s *Settings) error { return validateMonitorSettings(&s.Monitor) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}

	return nil
}

func validateRingBufferSettings(s *RingBufferSettings) error {
	var errs []string

	if s.Capacity <= 0 {
		errs = append(errs, "ringbuffer.capacity must be greater than 0")
	}
	if s.MaxEventSize < 0 {
		errs = append(errs, "ringbuffer.maxeventsize must not be negative")
	}
	if s.MaxEventSize > 0 && s.Capacity < 2*s.MaxEventSize {
		errs = append(errs, fmt.Sprintf("ringbuffer.capacity (%d) must be at least twice ringbuffer.maxeventsize (%d)", s.Capacity, s.MaxEventSize))
	}
	if s.MaxBuffers <= 0 {
		errs = append(errs, "ringbuffer.maxbuffers must be greater than 0")
	}
	if s.PollInterval <= 0 {
		errs = append(errs, "ringbuffer.pollinterval must be greater than 0")
	}

	return joinErrors("ringbuffer", errs)
}

func validateAcquisitionSettings(s *AcquisitionSettings) error {
	var errs []string

	if s.Channels < 1 || s.Channels > maxChannels {
		errs = append(errs, fmt.Sprintf("acquisition.channels must be between 1 and %d", maxChannels))
	}
	if s.Samples <= 0 {
		errs = append(errs, "acquisition.samples must be greater than 0")
	}
	if s.SampleSpeed <= 0 {
		errs = append(errs, "acquisition.samplespeed must be greater than 0")
	}
	if s.EventRate < 0 {
		errs = append(errs, "acquisition.eventrate must not be negative")
	}
	if s.AcquireTimeout < 0 {
		errs = append(errs, "acquisition.acquiretimeout must not be negative")
	}

	sim := &s.Simulation
	if sim.RiseTime <= 0 || sim.PulseWidth <= 0 {
		errs = append(errs, "acquisition.simulation risetime and pulsewidth must be greater than 0")
	}
	if len(sim.Lifetimes) == 0 {
		errs = append(errs, "acquisition.simulation.lifetimes must contain at least one component")
	}
	var total float64
	for i, lt := range sim.Lifetimes {
		if lt.Tau <= 0 || lt.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("acquisition.simulation.lifetimes[%d] needs tau > 0 and intensity >= 0", i))
		}
		total += lt.Intensity
	}
	if len(sim.Lifetimes) > 0 && total <= 0 {
		errs = append(errs, "acquisition.simulation.lifetimes intensities must not all be 0")
	}

	cal := &s.Calibration
	if cal.BaselineCells <= 0 || cal.BaselineCells >= s.Samples {
		errs = append(errs, "acquisition.calibration.baselinecells must be between 1 and samples-1")
	}
	if cal.CFDLevel <= 0 || cal.CFDLevel >= 1 {
		errs = append(errs, "acquisition.calibration.cfdlevel must be between 0 and 1 (exclusive)")
	}
	if len(cal.Channels) > s.Channels {
		errs = append(errs, "acquisition.calibration.channels has more entries than acquisition.channels")
	}

	return joinErrors("acquisition", errs)
}

func validateForwardSettings(s *ForwardSettings) error {
	var errs []string

	switch s.Sink {
	case SinkWriter:
		if s.Path == "" {
			errs = append(errs, "forward.path is required for the writer sink")
		}
	case SinkMemory:
		if s.MemorySize <= 0 {
			errs = append(errs, "forward.memorysize must be greater than 0")
		}
	case SinkMQTT:
		if err := validateBrokerURL(s.MQTT.Broker); err != nil {
			errs = append(errs, fmt.Sprintf("forward.mqtt.broker: %v", err))
		}
		if s.MQTT.Topic == "" {
			errs = append(errs, "forward.mqtt.topic is required")
		}
		if s.MQTT.QoS > 2 {
			errs = append(errs, "forward.mqtt.qos must be 0, 1 or 2")
		}
	case SinkKafka:
		if len(s.Kafka.Brokers) == 0 {
			errs = append(errs, "forward.kafka.brokers must not be empty")
		}
		if s.Kafka.Topic == "" {
			errs = append(errs, "forward.kafka.topic is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("forward.sink %q is not one of writer, memory, mqtt, kafka", s.Sink))
	}

	switch s.Compression {
	case CompressionNone, CompressionZstd, "":
	default:
		errs = append(errs, fmt.Sprintf("forward.compression %q is not one of none, zstd", s.Compression))
	}

	if s.BatchSize <= 0 {
		errs = append(errs, "forward.batchsize must be greater than 0")
	}

	return joinErrors("forward", errs)
}

func validateBrokerURL(broker string) error {
	u, err := url.Parse(broker)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validateMonitorSettings(s *MonitorSettings) error {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if s.Interval <= 0 {
		errs = append(errs, "monitor.interval must be greater than 0")
	}
	if s.WarningThreshold <= 0 || s.WarningThreshold > 1 {
		errs = append(errs, "monitor.warningthreshold must be in (0, 1]")
	}
	if s.DiskThreshold < 0 || s.DiskThreshold > 100 {
		errs = append(errs, "monitor.diskthreshold must be between 0 and 100")
	}
	return joinErrors("monitor", errs)
}

func validateTelemetrySettings(s *TelemetrySettings) error {
	var errs []string
	if s.Prometheus.Enabled && s.Prometheus.Listen == "" {
		errs = append(errs, "telemetry.prometheus.listen is required when prometheus is enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "telemetry.sentry.dsn is required when sentry is enabled")
	}
	return joinErrors("telemetry", errs)
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings: %s", section, strings.Join(errs, "; "))
}
