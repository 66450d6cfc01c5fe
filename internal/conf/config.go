// config.go: This file contains the configuration for the ddrs4pals acquisition core.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains the process identity and logging configuration.
type MainSettings struct {
	Name string               // name of this acquisition node, used as MQTT client prefix and in stream headers
	Log  logger.LoggingConfig // centralized logging configuration
}

// RingBufferSettings contains the sizing of the producer/consumer event buffer.
type RingBufferSettings struct {
	Capacity     int           // total buffer size in bytes, at least 2 x maxeventsize
	MaxEventSize int           // upper bound of a single event record in bytes, 0 derives it from the acquisition settings
	MaxBuffers   int           // maximum number of live buffers in the registry
	PollInterval time.Duration // sleep between space/data checks while blocking
}

// ChannelCalibration holds the per-channel correction applied by the consumer.
type ChannelCalibration struct {
	VoltageOffset float64 // mV added after gain
	VoltageGain   float64 // multiplicative voltage gain
	TimeOffset    float64 // ns added to every sample time
}

// CalibrationSettings contains pulse analysis parameters.
type CalibrationSettings struct {
	Channels      []ChannelCalibration // one entry per channel, missing entries use identity
	BaselineCells int                  // number of leading cells used for the baseline median
	CFDLevel      float64              // constant fraction level (0..1) for timing
	Negative      bool                 // pulses are negative going (PMT anode signal)
}

// LifetimeComponent is one exponential component of the simulated spectrum.
type LifetimeComponent struct {
	Tau       float64 // lifetime in ns
	Intensity float64 // relative intensity, normalized over all components
}

// SimulationSettings contains the parameters of the simulated DRS4 pulse source.
type SimulationSettings struct {
	Seed              int64               // random seed, 0 picks a time based seed
	RiseTime          float64             // log-normal pulse rise time in ns
	PulseWidth        float64             // log-normal shape parameter (dimensionless)
	StartAmplitude    float64             // mean amplitude of the 1274 keV start pulse in mV
	StopAmplitude     float64             // mean amplitude of the 511 keV stop pulse in mV
	AmplitudeSigma    float64             // relative amplitude spread
	Noise             float64             // baseline noise RMS in mV
	ArrivalTimeSpread float64             // jitter of the start pulse position in ns
	TimingResolution  float64             // detector and board timing resolution (sigma) in ns
	TriggerDelay      float64             // start pulse nominal position within the sweep in ns
	Lifetimes         []LifetimeComponent // positron lifetime components
}

// AcquisitionSettings contains the producer side configuration.
type AcquisitionSettings struct {
	Channels       int           // number of recorded channels per event
	Samples        int           // cells per channel, DRS4 has 1024
	SampleSpeed    float64       // sampling speed in GHz
	EventRate      float64       // simulated trigger rate in events/s, 0 = as fast as possible
	MaxEvents      uint64        // stop after this many events, 0 = unlimited
	AcquireTimeout time.Duration // bounded wait for a write or read region
	LockOSThread   bool          // pin producer and consumer loops to OS threads
	Simulation     SimulationSettings
	Calibration    CalibrationSettings
}

// MQTTSettings contains settings for the MQTT forwarding sink.
type MQTTSettings struct {
	Broker       string        // MQTT broker URL, e.g. tcp://localhost:1883
	Topic        string        // topic events are published to
	Username     string        // optional username
	Password     string        // optional password, ${VAR} references are expanded
	PasswordFile string        // file holding the password, takes precedence over Password
	QoS          byte          // publish QoS level (0, 1, 2)
	Retain       bool          // retain published messages
	Timeout      time.Duration // publish and connect timeout
}

// KafkaSettings contains settings for the Kafka forwarding sink.
type KafkaSettings struct {
	Brokers  []string // bootstrap brokers
	Topic    string   // destination topic
	ClientID string   // sarama client id
}

// ForwardSettings selects and configures the sink the consumer forwards to.
type ForwardSettings struct {
	Sink        string // writer, memory, mqtt or kafka
	Compression string // none or zstd
	Path        string // output file for the writer sink, "-" for stdout
	MemorySize  int    // byte capacity of the in-memory sink
	BatchSize   int    // calibrated events per forwarded frame
	MQTT        MQTTSettings
	Kafka       KafkaSettings
}

// MonitorSettings controls CPU and buffer level sampling.
type MonitorSettings struct {
	Enabled          bool
	Interval         time.Duration // sampling interval
	WarningThreshold float64       // buffer fill ratio (0..1) that triggers a warning
	DiskThreshold    float64       // used space in percent at the writer sink output, 0 disables
}

// PrometheusSettings controls the metrics and status endpoint.
type PrometheusSettings struct {
	Enabled bool
	Listen  string // listen address, e.g. 0.0.0.0:8090
}

// SentrySettings controls error telemetry.
type SentrySettings struct {
	Enabled bool
	DSN     string // ${VAR} references are expanded
	DSNFile string // file holding the DSN, takes precedence over DSN
}

// TelemetrySettings groups the observability outputs.
type TelemetrySettings struct {
	Prometheus PrometheusSettings
	Sentry     SentrySettings
}

// Settings contains all configuration options for ddrs4pals.
type Settings struct {
	Debug bool // true to enable debug mode

	Main        MainSettings
	RingBuffer  RingBufferSettings
	Acquisition AcquisitionSettings
	Forward     ForwardSettings
	Monitor     MonitorSettings
	Telemetry   TelemetrySettings
}

var (
	settingsInstance   *Settings
	once               sync.Once
	settingsMutex      sync.RWMutex
	configFileOverride string
)

// SetConfigFile makes Load read exactly this file instead of searching the default paths.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFileOverride = path
}

// Load reads the configuration file and environment variables into the settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets replaces credential fields with their resolved values.
func resolveSecrets(settings *Settings) error {
	mqtt := &settings.Forward.MQTT
	password, err := secrets.Resolve(mqtt.PasswordFile, mqtt.Password)
	if err != nil {
		return err
	}
	mqtt.Password = password

	sentry := &settings.Telemetry.Sentry
	resolve := secrets.Resolve
	if sentry.Enabled {
		resolve = func(file, value string) (string, error) {
			return secrets.MustResolve("telemetry.sentry.dsn", file, value)
		}
	}
	dsn, err := resolve(sentry.DSNFile, sentry.DSN)
	if err != nil {
		return err
	}
	sentry.DSN = dsn
	return nil
}

// initViper initializes viper with default values and reads the configuration file.
// A missing config file is not an error; defaults and environment apply.
func initViper() error {
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFileOverride != "" {
		viper.SetConfigFile(configFileOverride)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("fatal error reading config file %s: %w", configFileOverride, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			GetLogger().Debug("no config file found, using defaults",
				logger.Any("paths", configPaths))
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// WriteDefaultConfig writes the embedded default config.yaml to path.
// Existing files are left untouched unless force is set.
func WriteDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := fs.ReadFile(configFiles, configFileName)
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", path))
	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				GetLogger().Error("error loading settings", logger.Error(err))
				os.Exit(1)
			}
		}
	})
	return GetSettings()
}

// Dump renders settings as YAML. Secrets are masked.
func Dump(settings *Settings) ([]byte, error) {
	masked := *settings
	if masked.Forward.MQTT.Password != "" {
		masked.Forward.MQTT.Password = "********"
	}
	if masked.Telemetry.Sentry.DSN != "" {
		masked.Telemetry.Sentry.DSN = "********"
	}

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return out, nil
}

// SaveYAMLConfig writes the settings to configPath.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// write to a temp file first so the rename is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
