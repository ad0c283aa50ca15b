package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
}

// setDirs points every directory at a fresh temp dir.
func setDirs(t *testing.T) (work, output, db string) {
	t.Helper()
	root := t.TempDir()
	work = filepath.Join(root, "work")
	output = filepath.Join(root, "output")
	db = filepath.Join(root, "db")
	t.Setenv("WORK_DIR", work)
	t.Setenv("OUTPUT_DIR", output)
	t.Setenv("DATABASE_DIR", db)
	t.Setenv("CONFIG_FILE", "")
	return work, output, db
}

func TestLoadConfigDefaults(t *testing.T) {
	work, output, db := setDirs(t)
	for _, key := range []string{"PORT", "MAX_CONCURRENT_JOBS", "JOB_TIMEOUT_MIN", "PROGRESS_INTERVAL", "MAX_INPUT_BYTES", "THUMBNAIL_WIDTH", "FFMPEG_PATH"} {
		t.Setenv(key, "")
	}

	config, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if config.WorkDir != work || config.OutputDir != output || config.DatabaseDir != db {
		t.Errorf("dirs = %s %s %s", config.WorkDir, config.OutputDir, config.DatabaseDir)
	}
	for _, dir := range []string{work, output, db} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s was not created", dir)
		}
	}
	if config.DatabasePath != filepath.Join(db, "jobs.db") {
		t.Errorf("DatabasePath = %s", config.DatabasePath)
	}
	if !config.LedgerEnabled {
		t.Error("ledger should be enabled for a writable directory")
	}
	if config.Port != "8080" {
		t.Errorf("Port = %s", config.Port)
	}
	if config.MaxConcurrentJobs < 1 {
		t.Errorf("MaxConcurrentJobs = %d", config.MaxConcurrentJobs)
	}
	if config.JobTimeoutMin != 2*time.Minute || config.JobTimeoutFallback != 2*time.Hour || config.JobTimeoutMultiplier != 4 {
		t.Errorf("timeouts = %v %v %v", config.JobTimeoutMin, config.JobTimeoutFallback, config.JobTimeoutMultiplier)
	}
	if config.ProgressInterval != 250*time.Millisecond {
		t.Errorf("ProgressInterval = %v", config.ProgressInterval)
	}
	if config.MaxInputBytes != 500*1024*1024 {
		t.Errorf("MaxInputBytes = %d", config.MaxInputBytes)
	}
	if config.ThumbnailWidth != 640 || config.FFmpegPath != "ffmpeg" {
		t.Errorf("thumbnail width %d, ffmpeg %s", config.ThumbnailWidth, config.FFmpegPath)
	}
	if config.Presets != nil {
		t.Error("no presets expected without a config file")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	setDirs(t)
	t.Setenv("MAX_CONCURRENT_JOBS", "3")
	t.Setenv("JOB_TIMEOUT_MIN", "30s")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("MIN_FREE_INODES", "10")

	config, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if config.MaxConcurrentJobs != 3 {
		t.Errorf("MaxConcurrentJobs = %d", config.MaxConcurrentJobs)
	}
	if config.JobTimeoutMin != 30*time.Second {
		t.Errorf("JobTimeoutMin = %v", config.JobTimeoutMin)
	}
	if config.MetricsEnabled {
		t.Error("MetricsEnabled should be false")
	}
	if config.MinFreeInodes != 10 {
		t.Errorf("MinFreeInodes = %d", config.MinFreeInodes)
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	setDirs(t)
	t.Setenv("JOB_TIMEOUT_MIN", "soon")
	t.Setenv("JOB_TIMEOUT_MULTIPLIER", "-2")
	t.Setenv("MAX_INPUT_BYTES", "lots")
	t.Setenv("METRICS_ENABLED", "maybe")
	t.Setenv("MAX_CONCURRENT_JOBS", "0")

	config, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if config.JobTimeoutMin != 2*time.Minute {
		t.Errorf("JobTimeoutMin = %v", config.JobTimeoutMin)
	}
	if config.JobTimeoutMultiplier != 4 {
		t.Errorf("JobTimeoutMultiplier = %v", config.JobTimeoutMultiplier)
	}
	if config.MaxInputBytes != 500*1024*1024 {
		t.Errorf("MaxInputBytes = %d", config.MaxInputBytes)
	}
	if !config.MetricsEnabled {
		t.Error("invalid bool should keep the default")
	}
	if config.MaxConcurrentJobs != 1 {
		t.Errorf("MaxConcurrentJobs = %d, want 1", config.MaxConcurrentJobs)
	}
}

func TestLoadConfigFile(t *testing.T) {
	setDirs(t)
	t.Setenv("PORT", "")
	t.Setenv("THUMBNAIL_WIDTH", "")
	t.Setenv("MAX_CONCURRENT_JOBS", "5")

	file := filepath.Join(t.TempDir(), "transcoder.toml")
	content := `
port = "9000"
thumbnail_width = 320
max_concurrent_jobs = 2
job_timeout_fallback = "3h"

[[presets]]
name = "720p"
width = 1280
height = 720
video_bitrate = 2500
audio_bitrate = 128
fps = 30
profile = "main"

[[presets]]
name = "240p"
width = 426
height = 240
video_bitrate = 400
audio_bitrate = 64
fps = 24
profile = "baseline"
`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", file)

	config, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if config.Port != "9000" {
		t.Errorf("Port = %s, want value from file", config.Port)
	}
	if config.ThumbnailWidth != 320 {
		t.Errorf("ThumbnailWidth = %d", config.ThumbnailWidth)
	}
	if config.MaxConcurrentJobs != 5 {
		t.Errorf("MaxConcurrentJobs = %d, environment should win over the file", config.MaxConcurrentJobs)
	}
	if config.JobTimeoutFallback != 3*time.Hour {
		t.Errorf("JobTimeoutFallback = %v", config.JobTimeoutFallback)
	}
	if len(config.Presets) != 2 || config.Presets[1].Name != "240p" || config.Presets[1].VideoBitrate != 400 {
		t.Errorf("Presets = %+v", config.Presets)
	}
}

func TestLoadConfigBadFile(t *testing.T) {
	setDirs(t)

	missing := filepath.Join(t.TempDir(), "missing.toml")
	t.Setenv("CONFIG_FILE", missing)
	if _, err := loadConfig(); err == nil {
		t.Error("missing config file should fail")
	}

	broken := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(broken, []byte("port = [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", broken)
	if _, err := loadConfig(); err == nil {
		t.Error("malformed config file should fail")
	}
}

func TestLoadConfigWorkDirNotADirectory(t *testing.T) {
	setDirs(t)
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WORK_DIR", file)

	if _, err := loadConfig(); err == nil {
		t.Error("a file as WORK_DIR should fail")
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/health":               "health",
		"/api/transcode":        "api/transcode",
		"/api/transcode/{id}":   "api/transcode",
		"/api/jobs/{requestId}": "api/jobs",
		"/":                     "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {}).Methods("GET")
	r.HandleFunc("/api/transcode", func(w http.ResponseWriter, _ *http.Request) {}).Methods("GET", "POST")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 3 {
		t.Errorf("got %d routes, want 3: %+v", len(routes), routes)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		512:               "512 B",
		1024:              "1.0 KiB",
		1536:              "1.5 KiB",
		500 * 1024 * 1024: "500.0 MiB",
		1 << 30:           "1.0 GiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestCheckBinaryMissing(t *testing.T) {
	if _, _, err := checkBinary("definitely-not-an-encoder-binary"); err == nil {
		t.Error("checkBinary() should fail for a missing binary")
	}
}

func TestRenderRoutes(t *testing.T) {
	out := renderRoutes([]RouteInfo{
		{Method: "POST", Path: "/api/transcode"},
		{Method: "GET", Path: "/health"},
		{Method: "GET", Path: "/"},
	})

	for _, want := range []string{"api/transcode", "/health", "root", "3 routes"} {
		if !strings.Contains(out, want) {
			t.Errorf("route table missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "api/transcode") > strings.Index(out, "/health") {
		t.Errorf("routes should be sorted by group:\n%s", out)
	}
}

func TestWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "work")
	if err := writableDir(dir); err != nil {
		t.Fatalf("writableDir() = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("write test left %d file(s) behind", len(entries))
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, nil, 0o644)
	if err := writableDir(file); err == nil {
		t.Error("a regular file should be rejected")
	}
}
