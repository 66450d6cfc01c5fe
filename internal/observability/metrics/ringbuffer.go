package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// RingBufferMetrics contains Prometheus metrics for the event ring buffers.
// All methods are safe to call on a nil receiver so buffers can run without metrics.
type RingBufferMetrics struct {
	registry *prometheus.Registry

	// Lifecycle
	buffersCreatedTotal *prometheus.CounterVec
	buffersDeletedTotal *prometheus.CounterVec
	liveBuffers         prometheus.Gauge

	// Hot path
	acquireTotal      *prometheus.CounterVec
	acquireWait       *prometheus.HistogramVec
	commitBytesTotal  *prometheus.CounterVec
	commitsTotal      *prometheus.CounterVec
	wrapsTotal        *prometheus.CounterVec
	invalidParamTotal *prometheus.CounterVec

	// State
	levelBytes    *prometheus.GaugeVec
	capacityBytes *prometheus.GaugeVec
	fillRatio     *prometheus.GaugeVec
}

// NewRingBufferMetrics creates and registers ring buffer metrics
func NewRingBufferMetrics(registry *prometheus.Registry) (*RingBufferMetrics, error) {
	m := &RingBufferMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize ring buffer metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ring buffer metrics: %w", err)
	}
	return m, nil
}

func (m *RingBufferMetrics) initMetrics() error {
	m.buffersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_creates_total",
			Help: "Total number of ring buffer create calls",
		},
		[]string{"status"}, // success, invalid_param, no_memory
	)

	m.buffersDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_deletes_total",
			Help: "Total number of ring buffer delete calls",
		},
		[]string{"status"}, // success, invalid_handle
	)

	m.liveBuffers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ringbuffer_live_buffers",
		Help: "Number of ring buffers currently registered",
	})

	m.acquireTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_acquire_total",
			Help: "Total number of region acquisitions by side and outcome",
		},
		[]string{"side", "status"}, // side: write, read; status: success, timeout, cancelled
	)

	m.acquireWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ringbuffer_acquire_wait_seconds",
			Help:    "Time spent waiting for a region when it was not immediately available",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"side"},
	)

	m.commitBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_commit_bytes_total",
			Help: "Total bytes committed by side",
		},
		[]string{"handle", "side"},
	)

	m.commitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_commits_total",
			Help: "Total number of commits by side",
		},
		[]string{"handle", "side"},
	)

	m.wrapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_wraps_total",
			Help: "Total number of offset wrap-arounds by side",
		},
		[]string{"handle", "side"},
	)

	m.invalidParamTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringbuffer_invalid_commits_total",
			Help: "Commits rejected because size exceeded the maximum event size",
		},
		[]string{"side"},
	)

	m.levelBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ringbuffer_level_bytes",
			Help: "Bytes written but not yet read",
		},
		[]string{"handle"},
	)

	m.capacityBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ringbuffer_capacity_bytes",
			Help: "Ring buffer capacity in bytes",
		},
		[]string{"handle"},
	)

	m.fillRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ringbuffer_fill_ratio",
			Help: "Buffer level divided by capacity (0.0 to 1.0)",
		},
		[]string{"handle"},
	)

	return nil
}

func handleLabel(handle int) string {
	return strconv.Itoa(handle)
}

// RecordCreate records a create call. On success the capacity gauge is set.
func (m *RingBufferMetrics) RecordCreate(handle, capacity int, status string) {
	if m == nil {
		return
	}
	m.buffersCreatedTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.liveBuffers.Inc()
		m.capacityBytes.WithLabelValues(handleLabel(handle)).Set(float64(capacity))
		m.levelBytes.WithLabelValues(handleLabel(handle)).Set(0)
		m.fillRatio.WithLabelValues(handleLabel(handle)).Set(0)
	}
}

// RecordDelete records a delete call and drops the per-handle series on success,
// since handles are reused.
func (m *RingBufferMetrics) RecordDelete(handle int, status string) {
	if m == nil {
		return
	}
	m.buffersDeletedTotal.WithLabelValues(status).Inc()
	if status != StatusSuccess {
		return
	}
	m.liveBuffers.Dec()
	label := handleLabel(handle)
	m.levelBytes.DeleteLabelValues(label)
	m.capacityBytes.DeleteLabelValues(label)
	m.fillRatio.DeleteLabelValues(label)
	for _, side := range []string{SideWrite, SideRead} {
		m.commitBytesTotal.DeleteLabelValues(label, side)
		m.commitsTotal.DeleteLabelValues(label, side)
		m.wrapsTotal.DeleteLabelValues(label, side)
	}
}

// RecordAcquire records the outcome of an acquisition. waitSeconds is only
// observed when the caller actually waited.
func (m *RingBufferMetrics) RecordAcquire(side, status string, waitSeconds float64) {
	if m == nil {
		return
	}
	m.acquireTotal.WithLabelValues(side, status).Inc()
	if waitSeconds > 0 {
		m.acquireWait.WithLabelValues(side).Observe(waitSeconds)
	}
}

// RecordInvalidCommit records a commit rejected for exceeding the maximum event size.
func (m *RingBufferMetrics) RecordInvalidCommit(side string) {
	if m == nil {
		return
	}
	m.invalidParamTotal.WithLabelValues(side).Inc()
}

// BufferMetrics holds the per-handle series of one buffer, resolved once so
// the commit path does no label lookups.
type BufferMetrics struct {
	parent   *RingBufferMetrics
	capacity float64

	commits     [2]prometheus.Counter
	commitBytes [2]prometheus.Counter
	wraps       [2]prometheus.Counter
	level       prometheus.Gauge
	fill        prometheus.Gauge
}

const (
	writeIdx = 0
	readIdx  = 1
)

func sideIndex(side string) int {
	if side == SideRead {
		return readIdx
	}
	return writeIdx
}

// ForBuffer returns the per-handle metrics of a buffer. Returns nil on a nil receiver.
func (m *RingBufferMetrics) ForBuffer(handle, capacity int) *BufferMetrics {
	if m == nil {
		return nil
	}
	label := handleLabel(handle)
	bm := &BufferMetrics{
		parent:   m,
		capacity: float64(capacity),
		level:    m.levelBytes.WithLabelValues(label),
		fill:     m.fillRatio.WithLabelValues(label),
	}
	for i, side := range []string{SideWrite, SideRead} {
		bm.commits[i] = m.commitsTotal.WithLabelValues(label, side)
		bm.commitBytes[i] = m.commitBytesTotal.WithLabelValues(label, side)
		bm.wraps[i] = m.wrapsTotal.WithLabelValues(label, side)
	}
	return bm
}

// RecordAcquire forwards to the parent collector.
func (bm *BufferMetrics) RecordAcquire(side, status string, waitSeconds float64) {
	if bm == nil {
		return
	}
	bm.parent.RecordAcquire(side, status, waitSeconds)
}

// RecordCommit records a successful commit of size bytes.
func (bm *BufferMetrics) RecordCommit(side string, size int, wrapped bool) {
	if bm == nil {
		return
	}
	i := sideIndex(side)
	bm.commits[i].Inc()
	bm.commitBytes[i].Add(float64(size))
	if wrapped {
		bm.wraps[i].Inc()
	}
}

// RecordInvalidCommit forwards to the parent collector.
func (bm *BufferMetrics) RecordInvalidCommit(side string) {
	if bm == nil {
		return
	}
	bm.parent.RecordInvalidCommit(side)
}

// UpdateLevel sets the level and fill ratio gauges.
func (bm *BufferMetrics) UpdateLevel(level int) {
	if bm == nil {
		return
	}
	bm.level.Set(float64(level))
	if bm.capacity > 0 {
		bm.fill.Set(float64(level) / bm.capacity)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *RingBufferMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.buffersCreatedTotal.Describe(ch)
	m.buffersDeletedTotal.Describe(ch)
	m.liveBuffers.Describe(ch)
	m.acquireTotal.Describe(ch)
	m.acquireWait.Describe(ch)
	m.commitBytesTotal.Describe(ch)
	m.commitsTotal.Describe(ch)
	m.wrapsTotal.Describe(ch)
	m.invalidParamTotal.Describe(ch)
	m.levelBytes.Describe(ch)
	m.capacityBytes.Describe(ch)
	m.fillRatio.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *RingBufferMetrics) Collect(ch chan<- prometheus.Metric) {
	m.buffersCreatedTotal.Collect(ch)
	m.buffersDeletedTotal.Collect(ch)
	m.liveBuffers.Collect(ch)
	m.acquireTotal.Collect(ch)
	m.acquireWait.Collect(ch)
	m.commitBytesTotal.Collect(ch)
	m.commitsTotal.Collect(ch)
	m.wrapsTotal.Collect(ch)
	m.invalidParamTotal.Collect(ch)
	m.levelBytes.Collect(ch)
	m.capacityBytes.Collect(ch)
	m.fillRatio.Collect(ch)
}
