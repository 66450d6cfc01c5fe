package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ForwardMetrics contains Prometheus metrics for the forwarding sinks.
// Every series is labelled with the sink name (writer, memory, mqtt, kafka).
type ForwardMetrics struct {
	ConnectionStatus  *prometheus.GaugeVec
	MessagesDelivered *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	ReconnectAttempts *prometheus.CounterVec
	MessageSize       *prometheus.HistogramVec
	PublishLatency    *prometheus.HistogramVec
	CompressionRatio  prometheus.Histogram
	registry          *prometheus.Registry
}

// NewForwardMetrics creates a new instance of ForwardMetrics.
func NewForwardMetrics(registry *prometheus.Registry) (*ForwardMetrics, error) {
	m := &ForwardMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize forward metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register forward metrics: %w", err)
	}
	return m, nil
}

func (m *ForwardMetrics) initMetrics() error {
	m.ConnectionStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "forward_connection_status",
		Help: "Current sink connection status (1 for connected, 0 for disconnected)",
	}, []string{"sink"})

	m.MessagesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forward_messages_delivered_total",
		Help: "Total number of frames successfully delivered",
	}, []string{"sink"})

	m.Errors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forward_errors_total",
		Help: "Total number of forwarding errors encountered",
	}, []string{"sink"})

	m.ReconnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forward_reconnect_attempts_total",
		Help: "Total number of sink reconnection attempts",
	}, []string{"sink"})

	m.MessageSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forward_message_size_bytes",
		Help:    "Size of forwarded frames in bytes",
		Buckets: prometheus.ExponentialBuckets(64, 2, 14),
	}, []string{"sink"})

	m.PublishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forward_publish_latency_seconds",
		Help:    "Latency of sink publish operations in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"sink"})

	m.CompressionRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forward_compression_ratio",
		Help:    "Compressed frame size divided by raw frame size",
		Buckets: prometheus.LinearBuckets(0.05, 0.05, 20),
	})

	return nil
}

// UpdateConnectionStatus updates the connection status of a sink.
func (m *ForwardMetrics) UpdateConnectionStatus(sink string, connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ConnectionStatus.WithLabelValues(sink).Set(1)
	} else {
		m.ConnectionStatus.WithLabelValues(sink).Set(0)
	}
}

// IncrementMessagesDelivered increments the count of delivered frames.
func (m *ForwardMetrics) IncrementMessagesDelivered(sink string) {
	if m == nil {
		return
	}
	m.MessagesDelivered.WithLabelValues(sink).Inc()
}

// IncrementErrors increments the count of forwarding errors.
func (m *ForwardMetrics) IncrementErrors(sink string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(sink).Inc()
}

// IncrementReconnectAttempts increments the count of reconnection attempts.
func (m *ForwardMetrics) IncrementReconnectAttempts(sink string) {
	if m == nil {
		return
	}
	m.ReconnectAttempts.WithLabelValues(sink).Inc()
}

// ObserveMessageSize records the size of a forwarded frame.
func (m *ForwardMetrics) ObserveMessageSize(sink string, sizeBytes int) {
	if m == nil {
		return
	}
	m.MessageSize.WithLabelValues(sink).Observe(float64(sizeBytes))
}

// ObserveCompressionRatio records compressed/raw for one frame.
func (m *ForwardMetrics) ObserveCompressionRatio(raw, compressed int) {
	if m == nil || raw == 0 {
		return
	}
	m.CompressionRatio.Observe(float64(compressed) / float64(raw))
}

// StartPublishTimer starts a timer for measuring publish latency.
func (m *ForwardMetrics) StartPublishTimer(sink string) *PublishTimer {
	return &PublishTimer{
		startTime: time.Now(),
		sink:      sink,
		metrics:   m,
	}
}

// PublishTimer is a helper struct for measuring publish latency.
type PublishTimer struct {
	startTime time.Time
	sink      string
	metrics   *ForwardMetrics
}

// ObserveDuration stops the timer and records the duration.
func (pt *PublishTimer) ObserveDuration() {
	if pt.metrics == nil {
		return
	}
	pt.metrics.PublishLatency.WithLabelValues(pt.sink).Observe(time.Since(pt.startTime).Seconds())
}

// Collect implements the prometheus.Collector interface.
func (m *ForwardMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ConnectionStatus.Collect(ch)
	m.MessagesDelivered.Collect(ch)
	m.Errors.Collect(ch)
	m.ReconnectAttempts.Collect(ch)
	m.MessageSize.Collect(ch)
	m.PublishLatency.Collect(ch)
	m.CompressionRatio.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *ForwardMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionStatus.Describe(ch)
	m.MessagesDelivered.Describe(ch)
	m.Errors.Describe(ch)
	m.ReconnectAttempts.Describe(ch)
	m.MessageSize.Describe(ch)
	m.PublishLatency.Describe(ch)
	m.CompressionRatio.Describe(ch)
}
