package metrics

import (
	"runtime"
	"runtime/debug"
	"time"

	"media-transcoder/internal/logging"
)

// StatsProvider supplies values that have to be polled rather than
// recorded as events.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the polled statistics
type Stats struct {
	LedgerJobs          int64
	WorkspaceFreeBytes  uint64
	WorkspaceFreeInodes uint64
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() Stats

// GetStats calls f.
func (f StatsFunc) GetStats() Stats {
	return f()
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	collectRuntime()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()
	LedgerJobsRecorded.Set(float64(stats.LedgerJobs))
	WorkspaceFreeBytes.Set(float64(stats.WorkspaceFreeBytes))
	WorkspaceFreeInodes.Set(float64(stats.WorkspaceFreeInodes))

	logging.Debug("Metrics collected: ledger=%d free=%d bytes inodes=%d",
		stats.LedgerJobs, stats.WorkspaceFreeBytes, stats.WorkspaceFreeInodes)
}

func collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	GoMemAllocBytes.Set(float64(m.Alloc))
	GoMemSysBytes.Set(float64(m.Sys))

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < 1<<62 {
		GoMemLimit.Set(float64(limit))
	}
}
