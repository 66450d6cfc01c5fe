package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		RingBuffer: RingBufferSettings{
			Capacity:     1 << 20,
			MaxBuffers:   100,
			PollInterval: 10 * time.Millisecond,
		},
		Acquisition: AcquisitionSettings{
			Channels:       2,
			Samples:        1024,
			SampleSpeed:    5.12,
			AcquireTimeout: 100 * time.Millisecond,
			Simulation: SimulationSettings{
				RiseTime:   5,
				PulseWidth: 0.35,
				Lifetimes:  []LifetimeComponent{{Tau: 0.16, Intensity: 1}},
			},
			Calibration: CalibrationSettings{BaselineCells: 50, CFDLevel: 0.25},
		},
		Forward: ForwardSettings{
			Sink:        SinkWriter,
			Compression: CompressionNone,
			Path:        "out.stream",
			BatchSize:   64,
			MQTT:        MQTTSettings{Broker: "tcp://localhost:1883", Topic: "t"},
		},
		Monitor: MonitorSettings{Enabled: true, Interval: time.Second, WarningThreshold: 0.9},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"capacity below twice max event", func(s *Settings) {
			s.RingBuffer.Capacity = 100
			s.RingBuffer.MaxEventSize = 60
		}, "at least twice"},
		{"capacity exactly twice max event", func(s *Settings) {
			s.RingBuffer.Capacity = 120
			s.RingBuffer.MaxEventSize = 60
		}, ""},
		{"zero poll interval", func(s *Settings) { s.RingBuffer.PollInterval = 0 }, "pollinterval"},
		{"too many channels", func(s *Settings) { s.Acquisition.Channels = 9 }, "acquisition.channels"},
		{"baseline covers whole trace", func(s *Settings) { s.Acquisition.Calibration.BaselineCells = 1024 }, "baselinecells"},
		{"cfd level out of range", func(s *Settings) { s.Acquisition.Calibration.CFDLevel = 1.5 }, "cfdlevel"},
		{"no lifetimes", func(s *Settings) { s.Acquisition.Simulation.Lifetimes = nil }, "lifetimes"},
		{"unknown sink", func(s *Settings) { s.Forward.Sink = "carrier-pigeon" }, "forward.sink"},
		{"mqtt bad scheme", func(s *Settings) {
			s.Forward.Sink = SinkMQTT
			s.Forward.MQTT.Broker = "ftp://broker"
		}, "unsupported scheme"},
		{"kafka without brokers", func(s *Settings) {
			s.Forward.Sink = SinkKafka
			s.Forward.Kafka.Topic = "events"
		}, "forward.kafka.brokers"},
		{"unknown compression", func(s *Settings) { s.Forward.Compression = "lz4" }, "compression"},
		{"monitor threshold", func(s *Settings) { s.Monitor.WarningThreshold = 0 }, "warningthreshold"},
		{"monitor disk threshold", func(s *Settings) { s.Monitor.DiskThreshold = 120 }, "diskthreshold"},
		{"monitor disabled skips checks", func(s *Settings) {
			s.Monitor.Enabled = false
			s.Monitor.Interval = 0
		}, ""},
		{"sentry without dsn", func(s *Settings) { s.Telemetry.Sentry.Enabled = true }, "dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var ve ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}
