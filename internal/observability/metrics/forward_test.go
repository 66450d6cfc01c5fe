package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewForwardMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus("mqtt", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConnectionStatus.WithLabelValues("mqtt")))
	m.UpdateConnectionStatus("mqtt", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ConnectionStatus.WithLabelValues("mqtt")))

	m.IncrementMessagesDelivered("kafka")
	m.IncrementMessagesDelivered("kafka")
	m.IncrementErrors("kafka")
	m.IncrementReconnectAttempts("mqtt")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesDelivered.WithLabelValues("kafka")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Errors.WithLabelValues("kafka")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconnectAttempts.WithLabelValues("mqtt")))

	m.ObserveMessageSize("writer", 4096)
	m.ObserveCompressionRatio(1000, 250)
	m.ObserveCompressionRatio(0, 0)
	m.StartPublishTimer("writer").ObserveDuration()

	assert.Equal(t, 1, testutil.CollectAndCount(m.MessageSize))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PublishLatency))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CompressionRatio))
}

func TestForwardMetricsNilSafe(t *testing.T) {
	var m *ForwardMetrics
	assert.NotPanics(t, func() {
		m.UpdateConnectionStatus("mqtt", true)
		m.IncrementMessagesDelivered("mqtt")
		m.IncrementErrors("mqtt")
		m.IncrementReconnectAttempts("mqtt")
		m.ObserveMessageSize("mqtt", 1)
		m.ObserveCompressionRatio(2, 1)
		m.StartPublishTimer("mqtt").ObserveDuration()
	})
}

func TestSystemMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewSystemMetrics(registry)
	require.NoError(t, err)

	m.SetCPUUsage(42.5)
	m.SetHostInfo("Test CPU", 8, 4)
	m.SetHostInfo("Test CPU", 8, 4)
	m.IncrementBufferWarnings(3)
	m.SetDiskUsage("/data", 71.5)

	assert.InDelta(t, 42.5, testutil.ToFloat64(m.cpuUsagePercent), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.hostInfo))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.hostInfo.WithLabelValues("Test CPU", "8", "4")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bufferWarnings.WithLabelValues("3")))
	assert.InDelta(t, 71.5, testutil.ToFloat64(m.diskUsage.WithLabelValues("/data")), 1e-9)
}
