package startup

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"media-transcoder/internal/logging"
	"media-transcoder/internal/memory"
)

const rule = "------------------------------------------------------------"

// section opens a titled block in the startup log.
func section(title string, args ...interface{}) {
	logging.Info("")
	logging.Info(rule)
	logging.Info(title, args...)
	logging.Info(rule)
}

func printBanner() {
	fmt.Println(rule + `
  _                                   _
 | |_ _ __ __ _ _ __  ___  ___ ___   __| | ___ _ __
 | __| '__/ _' | '_ \/ __|/ __/ _ \ / _' |/ _ \ '__|
 | |_| | | (_| | | | \__ \ (_| (_) | (_| |  __/ |
  \__|_|  \__,_|_| |_|___/\___\___/ \__,_|\___|_|
` + rule)
	logging.Info("  Version:    %s (%s)", Version, Commit)
	logging.Info("  Built:      %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

// logSystemInfo reports what the encoder will be competing for: CPUs
// and physical memory.
func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go:              %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs:            %d (GOMAXPROCS %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))

	if vm, err := mem.VirtualMemory(); err == nil {
		logging.Info("  Memory:          %s total, %s available", formatBytes(int64(vm.Total)), formatBytes(int64(vm.Available)))
	}
	if info, err := host.Info(); err == nil {
		logging.Info("  Host:            %s (%s %s, kernel %s)", info.Hostname, info.Platform, info.PlatformVersion, info.KernelVersion)
		if info.VirtualizationRole == "guest" {
			logging.Info("  Virtualization:  %s guest", info.VirtualizationSystem)
		}
	}
}

// LogMemoryConfig reports how GOMEMLIMIT was set and where memory
// pressure readings come from.
func LogMemoryConfig(result memory.ConfigResult, source string) {
	section("MEMORY")
	switch {
	case result.Configured && result.Source == "MEMORY_LIMIT":
		logging.Info("  GOMEMLIMIT:      %s (%.0f%% of %s)", formatBytes(result.GoMemLimit), result.Ratio*100, formatBytes(result.ContainerLimit))
	case result.Configured:
		logging.Info("  GOMEMLIMIT:      %s (from environment)", formatBytes(result.GoMemLimit))
	default:
		logging.Info("  GOMEMLIMIT:      not set (set MEMORY_LIMIT or GOMEMLIMIT)")
	}
	logging.Info("  Pressure source: %s", source)
}

// EngineInfo describes the resolved encoder binaries.
type EngineInfo struct {
	FFmpegPath     string
	FFprobePath    string
	FFmpegVersion  string
	FFprobeVersion string
}

// LogEngineInit checks that ffmpeg and ffprobe can be run. Both are
// required, so a failure is returned rather than logged.
func LogEngineInit(ffmpegPath, ffprobePath string) (EngineInfo, error) {
	section("ENGINE")

	var info EngineInfo
	var err error
	if info.FFmpegPath, info.FFmpegVersion, err = checkBinary(ffmpegPath); err != nil {
		return info, fmt.Errorf("ffmpeg check failed: %w", err)
	}
	if info.FFprobePath, info.FFprobeVersion, err = checkBinary(ffprobePath); err != nil {
		return info, fmt.Errorf("ffprobe check failed: %w", err)
	}
	logging.Info("  [OK] ffmpeg:  %s", info.FFmpegPath)
	logging.Debug("       %s", info.FFmpegVersion)
	logging.Info("  [OK] ffprobe: %s", info.FFprobePath)
	logging.Debug("       %s", info.FFprobeVersion)
	return info, nil
}

// checkBinary resolves name on PATH and returns the first line of its
// -version output.
func checkBinary(name string) (path, version string, err error) {
	path, err = exec.LookPath(name)
	if err != nil {
		return "", "", fmt.Errorf("%s not found", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return path, "", fmt.Errorf("failed to get %s version: %w", name, err)
	}
	version, _, _ = strings.Cut(string(output), "\n")
	return path, strings.TrimSpace(version), nil
}

// LogLedgerInit reports the job ledger. A nil err means it is open.
func LogLedgerInit(duration time.Duration, jobs int64, err error) {
	section("JOB LEDGER")
	if err != nil {
		logging.Warn("  Job ledger unavailable: %v", err)
		logging.Warn("  Job history will not be recorded")
		return
	}
	logging.Info("  [OK] Opened in %v, %d job(s) recorded", duration, jobs)
}

// AdmissionInfo describes the admission setup for the startup log.
type AdmissionInfo struct {
	Capacity      int
	ThreadsPerJob int
	MemorySource  string
	SweptDirs     int
	SweptBytes    int64
}

// LogAdmissionInit logs the job ceiling and the startup workspace sweep.
func LogAdmissionInit(info AdmissionInfo) {
	section("ADMISSION")
	logging.Info("  Concurrent jobs:  %d", info.Capacity)
	logging.Info("  Threads per job:  %d", info.ThreadsPerJob)
	logging.Info("  Memory pressure:  %s", info.MemorySource)
	if info.SweptDirs > 0 {
		logging.Info("  Removed %d stale workspace(s) (%s)", info.SweptDirs, formatBytes(info.SweptBytes))
	}
}

// ServerConfig holds what LogServerStarted prints.
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED in %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  API:      http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:  http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:  DISABLED")
	}
	logging.Info(rule)
}

func LogShutdownInitiated(signal string) {
	section("SHUTDOWN (received %s)", signal)
}

// LogShutdownStep is debug-only; LogShutdownStepComplete always prints.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}
