package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SystemMetrics contains host level metrics sampled by the monitor.
type SystemMetrics struct {
	registry *prometheus.Registry

	cpuUsagePercent prometheus.Gauge
	hostInfo        *prometheus.GaugeVec
	bufferWarnings  *prometheus.CounterVec
	diskUsage       *prometheus.GaugeVec
}

// NewSystemMetrics creates and registers system metrics.
func NewSystemMetrics(registry *prometheus.Registry) (*SystemMetrics, error) {
	m := &SystemMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize system metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register system metrics: %w", err)
	}
	return m, nil
}

func (m *SystemMetrics) initMetrics() error {
	m.cpuUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "system_cpu_usage_percent",
		Help: "Total CPU usage of the acquisition host in percent",
	})

	m.hostInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_host_info",
		Help: "Static host information, value is always 1",
	}, []string{"cpu", "logical_cores", "physical_cores"})

	m.bufferWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "system_buffer_fill_warnings_total",
		Help: "Number of times a ring buffer crossed the fill warning threshold",
	}, []string{"handle"})

	m.diskUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_disk_usage_percent",
		Help: "Used space of the filesystem holding the stream output in percent",
	}, []string{"path"})

	return nil
}

// SetCPUUsage records the latest CPU usage sample.
func (m *SystemMetrics) SetCPUUsage(percent float64) {
	if m == nil {
		return
	}
	m.cpuUsagePercent.Set(percent)
}

// SetHostInfo publishes the static host description.
func (m *SystemMetrics) SetHostInfo(cpu string, logicalCores, physicalCores int) {
	if m == nil {
		return
	}
	m.hostInfo.Reset()
	m.hostInfo.WithLabelValues(cpu, fmt.Sprint(logicalCores), fmt.Sprint(physicalCores)).Set(1)
}

// IncrementBufferWarnings counts a fill threshold crossing of a buffer.
func (m *SystemMetrics) IncrementBufferWarnings(handle int) {
	if m == nil {
		return
	}
	m.bufferWarnings.WithLabelValues(handleLabel(handle)).Inc()
}

// SetDiskUsage records the used space of the filesystem holding path.
func (m *SystemMetrics) SetDiskUsage(path string, percent float64) {
	if m == nil {
		return
	}
	m.diskUsage.WithLabelValues(path).Set(percent)
}

// Describe implements the prometheus.Collector interface.
func (m *SystemMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.cpuUsagePercent.Describe(ch)
	m.hostInfo.Describe(ch)
	m.bufferWarnings.Describe(ch)
	m.diskUsage.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SystemMetrics) Collect(ch chan<- prometheus.Metric) {
	m.cpuUsagePercent.Collect(ch)
	m.hostInfo.Collect(ch)
	m.bufferWarnings.Collect(ch)
	m.diskUsage.Collect(ch)
}
