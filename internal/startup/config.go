package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-transcoder/internal/logging"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/workers"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	WorkDir         string
	OutputDir       string
	DatabaseDir     string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool
	ConfigFile      string

	// Encoding
	MaxConcurrentJobs    int
	JobTimeoutMultiplier float64
	JobTimeoutMin        time.Duration
	JobTimeoutFallback   time.Duration
	ProgressInterval     time.Duration
	MaxInputBytes        int64
	FFmpegPath           string
	FFprobePath          string
	ThumbnailWidth       int

	// Workspace admission floors
	MinFreeDiskBytes uint64
	MinFreeInodes    uint64

	// JobHistoryRetention is how long ledger rows are kept.
	JobHistoryRetention time.Duration

	// Presets overrides the built-in tiers when the config file lists any.
	Presets []presets.Preset

	// Derived paths
	DatabasePath string

	// The ledger is optional: it is disabled when DATABASE_DIR is not
	// writable.
	LedgerEnabled bool
}

// fileConfig is the CONFIG_FILE layout. Scalar keys use the environment
// variable names in lower case:
//
//	work_dir = "/scratch"
//	max_concurrent_jobs = 2
//	job_timeout_min = "5m"
//
//	[[presets]]
//	name = "720p"
//	width = 1280
//	...
type fileConfig struct {
	Presets []presets.Preset `toml:"presets"`
}

// settings resolves a key from the environment first, then the config
// file, then the default.
type settings struct {
	file map[string]string
}

func loadSettings(path string) (settings, []presets.Preset, error) {
	s := settings{file: map[string]string{}}
	if path == "" {
		return s, nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return s, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return s, nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	for key, value := range raw {
		switch value.(type) {
		case map[string]any, []any, []map[string]any:
			continue
		}
		s.file[strings.ToUpper(key)] = fmt.Sprint(value)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return s, nil, fmt.Errorf("failed to parse presets in %s: %w", path, err)
	}
	return s, fc.Presets, nil
}

func (s settings) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s settings) getBool(key string, defaultValue bool) bool {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) getInt(key string, defaultValue int64) int64 {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) getFloat(key string, defaultValue float64) float64 {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func (s settings) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := s.get(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// LoadConfig loads and validates configuration from environment variables
// and the optional CONFIG_FILE.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()
	return loadConfig()
}

func loadConfig() (*Config, error) {
	section("CONFIGURATION")

	configFile := os.Getenv("CONFIG_FILE")
	s, filePresets, err := loadSettings(configFile)
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		logging.Info("  CONFIG_FILE:            %s (%d keys, %d presets)", configFile, len(s.file), len(filePresets))
	}

	config := &Config{
		WorkDir:              s.get("WORK_DIR", filepath.Join(os.TempDir(), "media-transcoder")),
		OutputDir:            s.get("OUTPUT_DIR", "/output"),
		DatabaseDir:          s.get("DATABASE_DIR", "/database"),
		Port:                 s.get("PORT", "8080"),
		MetricsPort:          s.get("METRICS_PORT", "9090"),
		MetricsEnabled:       s.getBool("METRICS_ENABLED", true),
		LogHealthChecks:      s.getBool("LOG_HEALTH_CHECKS", true),
		ConfigFile:           configFile,
		MaxConcurrentJobs:    int(s.getInt("MAX_CONCURRENT_JOBS", int64(workers.ForEncode(0)))),
		JobTimeoutMultiplier: s.getFloat("JOB_TIMEOUT_MULTIPLIER", 4),
		JobTimeoutMin:        s.getDuration("JOB_TIMEOUT_MIN", 2*time.Minute),
		JobTimeoutFallback:   s.getDuration("JOB_TIMEOUT_FALLBACK", 2*time.Hour),
		ProgressInterval:     s.getDuration("PROGRESS_INTERVAL", 250*time.Millisecond),
		MaxInputBytes:        s.getInt("MAX_INPUT_BYTES", probe.DefaultMaxInputBytes),
		FFmpegPath:           s.get("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          s.get("FFPROBE_PATH", "ffprobe"),
		ThumbnailWidth:       int(s.getInt("THUMBNAIL_WIDTH", 640)),
		MinFreeDiskBytes:     uint64(s.getInt("MIN_FREE_DISK_BYTES", 1<<30)),
		MinFreeInodes:        uint64(s.getInt("MIN_FREE_INODES", 1024)),
		JobHistoryRetention:  s.getDuration("JOB_HISTORY_RETENTION", 30*24*time.Hour),
		Presets:              filePresets,
	}
	if config.MaxConcurrentJobs < 1 {
		logging.Warn("  MAX_CONCURRENT_JOBS must be at least 1, using 1")
		config.MaxConcurrentJobs = 1
	}
	if config.ThumbnailWidth < 16 {
		logging.Warn("  THUMBNAIL_WIDTH too small, using 640")
		config.ThumbnailWidth = 640
	}

	logging.Info("  WORK_DIR:               %s", config.WorkDir)
	logging.Info("  OUTPUT_DIR:             %s", config.OutputDir)
	logging.Info("  DATABASE_DIR:           %s", config.DatabaseDir)
	logging.Info("  PORT:                   %s", config.Port)
	logging.Info("  METRICS_PORT:           %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:        %v", config.MetricsEnabled)
	logging.Info("  MAX_CONCURRENT_JOBS:    %d", config.MaxConcurrentJobs)
	logging.Info("  JOB_TIMEOUT_MULTIPLIER: %v", config.JobTimeoutMultiplier)
	logging.Info("  JOB_TIMEOUT_MIN:        %v", config.JobTimeoutMin)
	logging.Info("  JOB_TIMEOUT_FALLBACK:   %v", config.JobTimeoutFallback)
	logging.Info("  PROGRESS_INTERVAL:      %v", config.ProgressInterval)
	logging.Info("  MAX_INPUT_BYTES:        %s", formatBytes(config.MaxInputBytes))
	logging.Info("  MIN_FREE_DISK_BYTES:    %s", formatBytes(int64(config.MinFreeDiskBytes)))
	logging.Info("  MIN_FREE_INODES:        %d", config.MinFreeInodes)
	logging.Info("  THUMBNAIL_WIDTH:        %d", config.ThumbnailWidth)
	logging.Info("  FFMPEG_PATH:            %s", config.FFmpegPath)
	logging.Info("  FFPROBE_PATH:           %s", config.FFprobePath)
	logging.Info("  LOG_HEALTH_CHECKS:      %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())

	if err := setupDirectories(config); err != nil {
		return nil, err
	}
	return config, nil
}

func setupDirectories(config *Config) error {
	section("DIRECTORIES")

	var err error
	for _, dir := range []*string{&config.WorkDir, &config.OutputDir, &config.DatabaseDir} {
		if *dir, err = filepath.Abs(*dir); err != nil {
			return fmt.Errorf("failed to resolve directory path: %w", err)
		}
	}

	// Workspaces and outputs are required
	for _, d := range []struct{ path, name string }{
		{config.WorkDir, "work"},
		{config.OutputDir, "output"},
	} {
		if err := writableDir(d.path); err != nil {
			return fmt.Errorf("%s directory: %w", d.name, err)
		}
		logging.Info("  [OK] %-8s %s", d.name, d.path)
	}

	config.DatabasePath = filepath.Join(config.DatabaseDir, "jobs.db")
	if err := writableDir(config.DatabaseDir); err != nil {
		logging.Warn("  [--] ledger   %s: %v", config.DatabaseDir, err)
		logging.Warn("       job history will be disabled")
	} else {
		config.LedgerEnabled = true
		logging.Info("  [OK] ledger   %s", config.DatabaseDir)
	}
	return nil
}

// writableDir creates path if needed and proves it accepts writes.
func writableDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	f, err := os.CreateTemp(path, ".write-test-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
	}
	return nil
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
