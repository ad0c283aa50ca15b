package memory

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
)

// Config holds memory pressure thresholds.
type Config struct {
	// MemoryLimitBytes is the Go heap limit to measure against
	// (0 = use GOMEMLIMIT, or host memory when that is unset too).
	MemoryLimitBytes int64

	// HighWaterMark is the usage ratio below which a paused monitor resumes (0.0-1.0).
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio at which new jobs are refused (0.0-1.0).
	CriticalWaterMark float64

	// CheckInterval is how often usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Sampler returns the bytes in use and the bytes available in total.
type Sampler func() (used, total uint64, err error)

// Monitor samples memory usage and reports pressure to the admission
// controller. Encoders run as child processes, so without a Go heap limit
// the monitor watches host memory instead.
type Monitor struct {
	config   Config
	sample   Sampler
	source   string
	stopChan chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	used     uint64
	total    uint64
	isPaused bool
}

// NewMonitor creates a monitor for config.
func NewMonitor(config Config) *Monitor {
	limit := config.MemoryLimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
		}
	}

	if limit > 0 {
		logging.Info("Memory monitor using heap limit: %s", formatBytes(limit))
		return NewMonitorWithSampler(config, "heap", heapSampler(uint64(limit)))
	}

	logging.Info("Memory monitor: no heap limit configured, watching host memory")
	return NewMonitorWithSampler(config, "host", hostSampler)
}

// NewMonitorWithSampler creates a monitor that reads usage from sample.
func NewMonitorWithSampler(config Config, source string, sample Sampler) *Monitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Monitor{
		config:   config,
		sample:   sample,
		source:   source,
		stopChan: make(chan struct{}),
	}
}

func heapSampler(limit uint64) Sampler {
	return func() (uint64, uint64, error) {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		return stats.Alloc, limit, nil
	}
}

func hostSampler() (uint64, uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vm.Used, vm.Total, nil
}

// Start begins sampling in the background.
func (m *Monitor) Start() {
	m.Check()
	go m.monitorLoop()
}

// Stop stops the monitor. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) monitorLoop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-m.stopChan:
			return
		}
	}
}

// Check takes one sample and updates the paused state.
func (m *Monitor) Check() {
	used, total, err := m.sample()
	if err != nil {
		logging.Warn("Memory monitor: %s sample failed: %v", m.source, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.used, m.total = used, total
	if total == 0 {
		return
	}

	usage := float64(used) / float64(total)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.isPaused:
		logging.Warn("Memory critical (%.1f%% of %s), refusing new jobs", usage*100, m.source)
		m.isPaused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		if m.source == "heap" {
			go runtime.GC()
		}
	case usage < m.config.HighWaterMark && m.isPaused:
		logging.Info("Memory recovered (%.1f%% of %s), accepting jobs", usage*100, m.source)
		m.isPaused = false
		metrics.MemoryPaused.Set(0)
	}
}

// UnderPressure reports whether new jobs should be refused.
func (m *Monitor) UnderPressure() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// ShouldThrottle reports whether usage is at or above the high water mark.
func (m *Monitor) ShouldThrottle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.total == 0 {
		return false
	}
	return float64(m.used) >= float64(m.total)*m.config.HighWaterMark
}

// GetUsage returns the last sampled usage ratio, or 0 before the first sample.
func (m *Monitor) GetUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.total == 0 {
		return 0
	}
	return float64(m.used) / float64(m.total)
}

// Source returns "heap" or "host".
func (m *Monitor) Source() string {
	return m.source
}
