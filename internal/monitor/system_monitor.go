// Package monitor samples host load and ring buffer fill levels while an
// acquisition runs, and warns when a buffer or the output disk runs full.
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/errors"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/observability/metrics"
	"github.com/dpscience/ddrs4pals/internal/ringbuffer"
)

// GetLogger returns the module logger for the system monitor
func GetLogger() logger.Logger {
	return logger.Global().Module("monitor")
}

// ResourceType represents the type of resource being monitored
type ResourceType string

const (
	ResourceCPU    ResourceType = "cpu"
	ResourceDisk   ResourceType = "disk"
	ResourceBuffer ResourceType = "buffer"
)

// A warning clears once the value drops the hysteresis below the threshold.
// Buffer values are fill ratios, disk values are percent.
const (
	defaultInterval   = 5 * time.Second
	bufferHysteresis  = 0.05
	diskHysteresis    = 5.0
	stateKeySeparator = "|"
)

// AlertState tracks the current alert state for a resource
type AlertState struct {
	InWarning bool
	LastValue float64
	LastCheck time.Time
	Warnings  int // threshold crossings since the monitor started
}

// BufferSource lists the live ring buffers. *ringbuffer.Registry implements it.
type BufferSource interface {
	Stats() []ringbuffer.Stats
}

// HostInfo describes the acquisition host.
type HostInfo struct {
	CPU           string `json:"cpu"`
	Vendor        string `json:"vendor"`
	LogicalCores  int    `json:"logical_cores"`
	PhysicalCores int    `json:"physical_cores"`
	AVX2          bool   `json:"avx2"`
}

// GetHostInfo reads the CPU description.
func GetHostInfo() HostInfo {
	return HostInfo{
		CPU:           cpuid.CPU.BrandName,
		Vendor:        cpuid.CPU.VendorString,
		LogicalCores:  cpuid.CPU.LogicalCores,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
	}
}

// SystemMonitor periodically samples CPU usage, disk usage at the stream
// output and the fill level of every live ring buffer.
type SystemMonitor struct {
	settings    conf.MonitorSettings
	diskPath    string // empty when nothing is written to disk
	interval    time.Duration
	buffers     BufferSource
	metrics     *metrics.SystemMetrics
	alertStates map[string]*AlertState
	cpuUsage    float64
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         logger.Logger

	// samplers, replaced in tests
	sampleCPU  func() (float64, error)
	sampleDisk func(path string) (float64, error)
}

// NewSystemMonitor creates a new system monitor instance. buffers and m may be nil.
func NewSystemMonitor(settings *conf.Settings, buffers BufferSource, m *metrics.SystemMetrics) *SystemMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	interval := settings.Monitor.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	monitor := &SystemMonitor{
		settings:    settings.Monitor,
		diskPath:    outputDir(&settings.Forward),
		interval:    interval,
		buffers:     buffers,
		metrics:     m,
		alertStates: make(map[string]*AlertState),
		ctx:         ctx,
		cancel:      cancel,
		log:         GetLogger(),
		sampleCPU:   sampleCPU,
		sampleDisk:  sampleDisk,
	}

	host := GetHostInfo()
	m.SetHostInfo(host.CPU, host.LogicalCores, host.PhysicalCores)

	monitor.log.Info("System monitor instance created",
		logger.Bool("enabled", settings.Monitor.Enabled),
		logger.Duration("interval", interval),
		logger.Float64("warning_threshold", settings.Monitor.WarningThreshold),
		logger.Float64("disk_threshold", settings.Monitor.DiskThreshold),
		logger.String("disk_path", monitor.diskPath),
		logger.String("cpu", host.CPU),
		logger.Int("logical_cores", host.LogicalCores),
		logger.Int("physical_cores", host.PhysicalCores))

	return monitor
}

// outputDir returns the directory the writer sink writes into, or "" when the
// stream does not go to a file.
func outputDir(fwd *conf.ForwardSettings) string {
	if fwd.Sink != conf.SinkWriter || fwd.Path == "" || fwd.Path == "-" {
		return ""
	}
	return filepath.Dir(fwd.Path)
}

func sampleCPU() (float64, error) {
	// interval 0 compares against the previous call
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no CPU usage data returned")
	}
	return percents[0], nil
}

func sampleDisk(path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Start begins monitoring. It does nothing when monitoring is disabled.
func (m *SystemMonitor) Start() {
	if !m.settings.Enabled {
		m.log.Info("System monitoring is disabled in configuration")
		return
	}

	m.wg.Go(m.monitorLoop)
}

// Stop stops the monitor and waits for the loop to exit.
func (m *SystemMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Run starts the monitor and blocks until ctx is done.
func (m *SystemMonitor) Run(ctx context.Context) error {
	m.Start()
	select {
	case <-ctx.Done():
	case <-m.ctx.Done():
	}
	m.Stop()
	return nil
}

func (m *SystemMonitor) monitorLoop() {
	m.log.Info("System monitor loop started", logger.Duration("check_interval", m.interval))

	// Perform initial check
	m.checkAllResources()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAllResources()
		case <-m.ctx.Done():
			m.log.Info("System monitor loop stopping")
			return
		}
	}
}

func (m *SystemMonitor) checkAllResources() {
	m.checkCPU()
	if m.diskPath != "" && m.settings.DiskThreshold > 0 {
		m.checkDisk()
	}
	if m.buffers != nil {
		m.checkBuffers()
	}
}

func (m *SystemMonitor) checkCPU() {
	usage, err := m.sampleCPU()
	if err != nil {
		m.log.Warn("Failed to get CPU usage", logger.Error(err))
		return
	}

	m.mu.Lock()
	m.cpuUsage = usage
	m.mu.Unlock()

	m.metrics.SetCPUUsage(usage)
	m.log.Debug("CPU usage check", logger.Float64("usage_percent", usage))
}

func (m *SystemMonitor) checkDisk() {
	used, err := m.sampleDisk(m.diskPath)
	if err != nil {
		m.log.Warn("Failed to get disk usage",
			logger.String("path", m.diskPath),
			logger.Error(errors.New(err).
				Component("monitor").
				Category(errors.CategoryFileIO).
				Context("path", m.diskPath).
				Build()))
		return
	}

	m.metrics.SetDiskUsage(m.diskPath, used)
	m.checkThreshold(ResourceDisk, m.diskPath, used, m.settings.DiskThreshold, diskHysteresis)
}

func (m *SystemMonitor) checkBuffers() {
	stats := m.buffers.Stats()
	live := make(map[string]bool, len(stats))
	for i := range stats {
		st := &stats[i]
		id := fmt.Sprint(st.Handle)
		live[stateKey(ResourceBuffer, id)] = true
		if m.checkThreshold(ResourceBuffer, id, st.FillRatio, m.settings.WarningThreshold, bufferHysteresis) {
			m.metrics.IncrementBufferWarnings(int(st.Handle))
		}
	}

	// forget deleted buffers so a reused handle starts clean
	m.mu.Lock()
	for key := range m.alertStates {
		if resourceOf(key) == ResourceBuffer && !live[key] {
			delete(m.alertStates, key)
		}
	}
	m.mu.Unlock()
}

// checkThreshold updates the alert state of a resource and reports whether
// the value has just crossed the threshold.
func (m *SystemMonitor) checkThreshold(resource ResourceType, id string, value, threshold, hysteresis float64) bool {
	key := stateKey(resource, id)

	m.mu.Lock()
	state, exists := m.alertStates[key]
	if !exists {
		state = &AlertState{}
		m.alertStates[key] = state
	}
	state.LastValue = value
	state.LastCheck = time.Now()

	crossed := false
	recovered := false
	switch {
	case value >= threshold && !state.InWarning:
		state.InWarning = true
		state.Warnings++
		crossed = true
	case state.InWarning && value < threshold-hysteresis:
		state.InWarning = false
		recovered = true
	}
	warnings := state.Warnings
	m.mu.Unlock()

	switch {
	case crossed:
		m.log.Warn("Resource above warning threshold",
			logger.String("resource", string(resource)),
			logger.String("id", id),
			logger.Float64("value", value),
			logger.Float64("threshold", threshold),
			logger.Int("warnings", warnings))
	case recovered:
		m.log.Info("Resource recovered",
			logger.String("resource", string(resource)),
			logger.String("id", id),
			logger.Float64("value", value),
			logger.Float64("threshold", threshold))
	}
	return crossed
}

func stateKey(resource ResourceType, id string) string {
	return string(resource) + stateKeySeparator + id
}

func resourceOf(key string) ResourceType {
	resource, _, _ := strings.Cut(key, stateKeySeparator)
	return ResourceType(resource)
}

// CPUUsage returns the last sampled CPU usage in percent.
func (m *SystemMonitor) CPUUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cpuUsage
}

// GetResourceStatus returns a copy of the alert state of every tracked resource.
func (m *SystemMonitor) GetResourceStatus() map[string]AlertState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]AlertState, len(m.alertStates))
	for key, state := range m.alertStates {
		status[key] = *state
	}
	return status
}
