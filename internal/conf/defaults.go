// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "ddrs4pals")
	viper.SetDefault("main.log.default_level", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console.enabled", true)
	viper.SetDefault("main.log.console.level", "info")
	viper.SetDefault("main.log.file_output.enabled", false)
	viper.SetDefault("main.log.file_output.path", "logs/ddrs4pals.log")
	viper.SetDefault("main.log.file_output.level", "info")
	viper.SetDefault("main.log.file_output.max_size", 100)
	viper.SetDefault("main.log.file_output.max_age", 30)
	viper.SetDefault("main.log.file_output.max_rotated_files", 10)
	viper.SetDefault("main.log.file_output.compress", false)

	viper.SetDefault("ringbuffer.capacity", 16*1024*1024)
	viper.SetDefault("ringbuffer.maxeventsize", 0)
	viper.SetDefault("ringbuffer.maxbuffers", 100)
	viper.SetDefault("ringbuffer.pollinterval", 10*time.Millisecond)

	// DRS4 evaluation board: 2 channels, 1024 cells at 5.12 GHz (200 ns sweep)
	viper.SetDefault("acquisition.channels", 2)
	viper.SetDefault("acquisition.samples", 1024)
	viper.SetDefault("acquisition.samplespeed", 5.12)
	viper.SetDefault("acquisition.eventrate", 1000.0)
	viper.SetDefault("acquisition.maxevents", 0)
	viper.SetDefault("acquisition.acquiretimeout", 100*time.Millisecond)
	viper.SetDefault("acquisition.lockosthread", false)

	viper.SetDefault("acquisition.simulation.seed", 0)
	viper.SetDefault("acquisition.simulation.risetime", 5.0)
	viper.SetDefault("acquisition.simulation.pulsewidth", 0.35)
	viper.SetDefault("acquisition.simulation.startamplitude", 250.0)
	viper.SetDefault("acquisition.simulation.stopamplitude", 150.0)
	viper.SetDefault("acquisition.simulation.amplitudesigma", 0.1)
	viper.SetDefault("acquisition.simulation.noise", 1.5)
	viper.SetDefault("acquisition.simulation.arrivaltimespread", 0.5)
	viper.SetDefault("acquisition.simulation.timingresolution", 0.08)
	viper.SetDefault("acquisition.simulation.triggerdelay", 30.0)
	viper.SetDefault("acquisition.simulation.lifetimes", []map[string]any{
		{"tau": 0.160, "intensity": 0.85},
		{"tau": 0.385, "intensity": 0.14},
		{"tau": 1.800, "intensity": 0.01},
	})

	viper.SetDefault("acquisition.calibration.channels", []map[string]any{})
	viper.SetDefault("acquisition.calibration.baselinecells", 50)
	viper.SetDefault("acquisition.calibration.cfdlevel", 0.25)
	viper.SetDefault("acquisition.calibration.negative", true)

	viper.SetDefault("forward.sink", SinkWriter)
	viper.SetDefault("forward.compression", CompressionNone)
	viper.SetDefault("forward.path", "ddrs4pals.stream")
	viper.SetDefault("forward.memorysize", 4*1024*1024)
	viper.SetDefault("forward.batchsize", 64)

	viper.SetDefault("forward.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("forward.mqtt.topic", "ddrs4pals/events")
	viper.SetDefault("forward.mqtt.username", "")
	viper.SetDefault("forward.mqtt.password", "")
	viper.SetDefault("forward.mqtt.passwordfile", "")
	viper.SetDefault("forward.mqtt.qos", 0)
	viper.SetDefault("forward.mqtt.retain", false)
	viper.SetDefault("forward.mqtt.timeout", 5*time.Second)

	viper.SetDefault("forward.kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("forward.kafka.topic", "ddrs4pals-events")
	viper.SetDefault("forward.kafka.clientid", "ddrs4pals")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", 5*time.Second)
	viper.SetDefault("monitor.warningthreshold", 0.9)
	viper.SetDefault("monitor.diskthreshold", 95.0)

	viper.SetDefault("telemetry.prometheus.enabled", false)
	viper.SetDefault("telemetry.prometheus.listen", "0.0.0.0:8090")
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")
	viper.SetDefault("telemetry.sentry.dsnfile", "")
}
