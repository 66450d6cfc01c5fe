package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetConfig isolates each test from global viper state.
func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetConfigFile("")
	t.Cleanup(func() {
		viper.Reset()
		SetConfigFile("")
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFileMergesDefaults(t *testing.T) {
	resetConfig(t)

	SetConfigFile(writeConfig(t, `
ringbuffer:
  capacity: 4096
  maxeventsize: 512
  pollinterval: 2ms
forward:
  sink: memory
  compression: zstd
acquisition:
  simulation:
    lifetimes:
      - tau: 0.2
        intensity: 1.0
`))

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4096, settings.RingBuffer.Capacity)
	assert.Equal(t, 512, settings.RingBuffer.MaxEventSize)
	assert.Equal(t, 2*time.Millisecond, settings.RingBuffer.PollInterval)
	assert.Equal(t, 100, settings.RingBuffer.MaxBuffers, "default must survive partial file")

	assert.Equal(t, SinkMemory, settings.Forward.Sink)
	assert.Equal(t, CompressionZstd, settings.Forward.Compression)

	require.Len(t, settings.Acquisition.Simulation.Lifetimes, 1)
	assert.InDelta(t, 0.2, settings.Acquisition.Simulation.Lifetimes[0].Tau, 1e-12)

	assert.Equal(t, 2, settings.Acquisition.Channels)
	assert.Equal(t, 1024, settings.Acquisition.Samples)
	require.NotNil(t, settings.Main.Log.Console)
	assert.True(t, settings.Main.Log.Console.Enabled)

	assert.Same(t, settings, GetSettings())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	resetConfig(t)
	SetConfigFile(writeConfig(t, "ringbuffer:\n  capacity: 4096\n"))

	t.Setenv("DDRS4PALS_RINGBUFFER_CAPACITY", "8192")
	t.Setenv("DDRS4PALS_FORWARD_MQTT_TOPIC", "lab/pals")

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8192, settings.RingBuffer.Capacity)
	assert.Equal(t, "lab/pals", settings.Forward.MQTT.Topic)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	resetConfig(t)
	SetConfigFile(writeConfig(t, "debug: false\n"))

	t.Setenv("DDRS4PALS_RINGBUFFER_CAPACITY", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DDRS4PALS_RINGBUFFER_CAPACITY")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	resetConfig(t)
	SetConfigFile(writeConfig(t, `
ringbuffer:
  capacity: 100
  maxeventsize: 60
`))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least twice")
}

func TestWriteDefaultConfigLoadsCleanly(t *testing.T) {
	resetConfig(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))
	require.Error(t, WriteDefaultConfig(path, false), "existing file must not be overwritten")
	require.NoError(t, WriteDefaultConfig(path, true))

	SetConfigFile(path)
	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 16*1024*1024, settings.RingBuffer.Capacity)
	assert.Equal(t, 10*time.Millisecond, settings.RingBuffer.PollInterval)
	assert.Len(t, settings.Acquisition.Simulation.Lifetimes, 3)
	assert.Equal(t, []string{"localhost:9092"}, settings.Forward.Kafka.Brokers)
}

func TestSaveYAMLConfigIsReadable(t *testing.T) {
	resetConfig(t)
	SetConfigFile(writeConfig(t, "forward:\n  sink: memory\n"))

	settings, err := Load()
	require.NoError(t, err)
	settings.RingBuffer.Capacity = 65536

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	require.NoError(t, SaveYAMLConfig(path, settings))

	resetConfig(t)
	SetConfigFile(path)
	reloaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 65536, reloaded.RingBuffer.Capacity)
	assert.Equal(t, SinkMemory, reloaded.Forward.Sink)
}

func TestDumpMasksSecrets(t *testing.T) {
	settings := &Settings{}
	settings.Forward.MQTT.Password = "hunter2"
	settings.Telemetry.Sentry.DSN = "https://key@sentry.example/1"

	out, err := Dump(settings)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "sentry.example")
	assert.Contains(t, string(out), "********")
	assert.Equal(t, "hunter2", settings.Forward.MQTT.Password, "dump must not mutate the input")
}

func TestLoadResolvesSecrets(t *testing.T) {
	resetConfig(t)

	pwFile := filepath.Join(t.TempDir(), "mqtt_password")
	require.NoError(t, os.WriteFile(pwFile, []byte("from-file\n"), 0o600))
	t.Setenv("DDRS4PALS_TEST_DSN", "https://key@sentry.example.org/1")

	SetConfigFile(writeConfig(t, `
forward:
  mqtt:
    password: ignored
    passwordfile: `+pwFile+`
telemetry:
  sentry:
    enabled: true
    dsn: ${DDRS4PALS_TEST_DSN}
`))

	settings, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", settings.Forward.MQTT.Password)
	assert.Equal(t, "https://key@sentry.example.org/1", settings.Telemetry.Sentry.DSN)
}

func TestLoadRequiresSentryDSNWhenEnabled(t *testing.T) {
	resetConfig(t)
	SetConfigFile(writeConfig(t, "telemetry:\n  sentry:\n    enabled: true\n"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry.sentry.dsn")
}

func TestDefaultConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "ddrs4pals", "config.yaml"), path)

	// an existing config in the working directory wins
	require.NoError(t, os.WriteFile("config.yaml", []byte("main:\n  name: lab\n"), 0o600))
	path, err = DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", path)
}

func TestEnvValidation(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		value    string
		ok       bool
	}{
		{"positive int", validateEnvPositiveInt, "64", true},
		{"zero is not positive", validateEnvPositiveInt, "0", false},
		{"non-negative zero", validateEnvNonNegativeInt, "0", true},
		{"negative int", validateEnvNonNegativeInt, "-1", false},
		{"float rate", validateEnvNonNegativeFloat, "2500.5", true},
		{"not a number", validateEnvNonNegativeFloat, "fast", false},
		{"known sink", validateEnvSink, SinkKafka, true},
		{"unknown sink", validateEnvSink, "carrier-pigeon", false},
		{"broker url", validateEnvURL, "tcp://broker.local:1883", true},
		{"url without scheme", validateEnvURL, "broker.local", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
