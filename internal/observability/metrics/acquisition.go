package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AcquisitionMetrics contains Prometheus metrics for the producer and consumer loops.
// It implements Recorder.
type AcquisitionMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	eventBytes        prometheus.Histogram
	lifetimeNs        prometheus.Histogram
	pulseAmplitude    *prometheus.HistogramVec
}

// NewAcquisitionMetrics creates and registers acquisition metrics.
func NewAcquisitionMetrics(registry *prometheus.Registry) (*AcquisitionMetrics, error) {
	m := &AcquisitionMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize acquisition metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register acquisition metrics: %w", err)
	}
	return m, nil
}

func (m *AcquisitionMetrics) initMetrics() error {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_operations_total",
			Help: "Total number of acquisition pipeline operations by outcome",
		},
		[]string{"operation", "status"}, // operation: produce, consume, calibrate, forward
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisition_operation_duration_seconds",
			Help:    "Duration of acquisition pipeline operations",
			Buckets: prometheus.ExponentialBuckets(0.000005, 2, 18), // 5us to ~650ms
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acquisition_errors_total",
			Help: "Total number of acquisition pipeline errors by type",
		},
		[]string{"operation", "error_type"},
	)

	m.eventBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "acquisition_event_size_bytes",
		Help:    "Size of encoded event records",
		Buckets: prometheus.ExponentialBuckets(256, 2, 10),
	})

	m.lifetimeNs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "acquisition_lifetime_nanoseconds",
		Help:    "Start/stop time difference of calibrated coincidence events",
		Buckets: prometheus.LinearBuckets(-1, 0.1, 60), // -1ns to 5ns
	})

	m.pulseAmplitude = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acquisition_pulse_amplitude_millivolts",
			Help:    "Baseline corrected pulse amplitude per channel",
			Buckets: prometheus.LinearBuckets(0, 25, 20), // 0 to 500 mV
		},
		[]string{"channel"},
	)

	return nil
}

// RecordOperation implements Recorder.
func (m *AcquisitionMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *AcquisitionMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *AcquisitionMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// ObserveEventSize records the size of an encoded event record.
func (m *AcquisitionMetrics) ObserveEventSize(bytes int) {
	if m == nil {
		return
	}
	m.eventBytes.Observe(float64(bytes))
}

// ObserveLifetime records the start/stop difference of one event in ns.
func (m *AcquisitionMetrics) ObserveLifetime(ns float64) {
	if m == nil {
		return
	}
	m.lifetimeNs.Observe(ns)
}

// ObserveAmplitude records a pulse amplitude in mV for channel.
func (m *AcquisitionMetrics) ObserveAmplitude(channel string, mv float64) {
	if m == nil {
		return
	}
	m.pulseAmplitude.WithLabelValues(channel).Observe(mv)
}

// Describe implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.eventBytes.Describe(ch)
	m.lifetimeNs.Describe(ch)
	m.pulseAmplitude.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AcquisitionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.eventBytes.Collect(ch)
	m.lifetimeNs.Collect(ch)
	m.pulseAmplitude.Collect(ch)
}
