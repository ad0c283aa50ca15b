package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"media-transcoder/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The remainder is left for encoder child processes.
const DefaultMemoryRatio = 0.5

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from a container memory limit.
// Call it early in main before significant allocations.
//
//   - GOMEMLIMIT: takes precedence when set
//   - MEMORY_LIMIT: container limit in bytes (Kubernetes Downward API)
//   - MEMORY_RATIO: heap share of MEMORY_LIMIT (default 0.5)
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		return ConfigResult{Source: "none"}
	}

	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return ConfigResult{Source: "none"}
	}

	ratio := parseRatio(os.Getenv("MEMORY_RATIO"), DefaultMemoryRatio)
	goMemLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		formatBytes(goMemLimit), ratio*100, formatBytes(containerLimit))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by MEMORY_HIGH_WATER and
// MEMORY_CRITICAL_WATER.
func ConfigFromEnv() Config {
	config := DefaultConfig()
	config.HighWaterMark = parseRatio(os.Getenv("MEMORY_HIGH_WATER"), config.HighWaterMark)
	config.CriticalWaterMark = parseRatio(os.Getenv("MEMORY_CRITICAL_WATER"), config.CriticalWaterMark)
	if config.HighWaterMark > config.CriticalWaterMark {
		logging.Warn("MEMORY_HIGH_WATER above MEMORY_CRITICAL_WATER, using defaults")
		config = DefaultConfig()
	}
	return config
}

func parseRatio(raw string, fallback float64) float64 {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > 1 {
		logging.Warn("Ratio %q out of range (0.0-1.0), using %.2f", raw, fallback)
		return fallback
	}
	return v
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
