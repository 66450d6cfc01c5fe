package conf

// Forwarding sink types
const (
	SinkWriter = "writer"
	SinkMemory = "memory"
	SinkMQTT   = "mqtt"
	SinkKafka  = "kafka"
)

// Frame compression modes
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// envPrefix is prepended to every environment override, e.g. DDRS4PALS_RINGBUFFER_CAPACITY.
const envPrefix = "DDRS4PALS"

// maxChannels is the widest event the record header can describe.
const maxChannels = 8
