// Package observability provides metrics and monitoring capabilities for the ddrs4pals acquisition core.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	RingBuffer  *metrics.RingBufferMetrics
	Acquisition *metrics.AcquisitionMetrics
	Forward     *metrics.ForwardMetrics
	System      *metrics.SystemMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors
// on a fresh registry. It returns an error if any collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	ringBufferMetrics, err := metrics.NewRingBufferMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ring buffer metrics: %w", err)
	}

	acquisitionMetrics, err := metrics.NewAcquisitionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create acquisition metrics: %w", err)
	}

	forwardMetrics, err := metrics.NewForwardMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward metrics: %w", err)
	}

	systemMetrics, err := metrics.NewSystemMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create system metrics: %w", err)
	}

	return &Metrics{
		registry:    registry,
		RingBuffer:  ringBufferMetrics,
		Acquisition: acquisitionMetrics,
		Forward:     forwardMetrics,
		System:      systemMetrics,
	}, nil
}

// Registry returns the Prometheus registry all collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
