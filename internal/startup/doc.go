// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read by [LoadConfig] from environment variables. When
// CONFIG_FILE names a TOML file, its keys (the variable names in lower
// case) supply values for anything the environment leaves unset, and a
// [[presets]] array replaces the built-in quality tiers:
//
//	work_dir = "/scratch"
//	max_concurrent_jobs = 2
//
//	[[presets]]
//	name = "720p"
//	width = 1280
//	height = 720
//	video_bitrate = 2800
//	audio_bitrate = 128
//	fps = 30
//	profile = "main"
//
// Supported keys:
//
//   - WORK_DIR: Parent of per-job workspaces (default: $TMPDIR/media-transcoder)
//   - OUTPUT_DIR: Where finished renditions are stored (default: /output)
//   - DATABASE_DIR: Job ledger directory, optional (default: /database)
//   - PORT / METRICS_PORT: HTTP and Prometheus ports (default: 8080 / 9090)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - MAX_CONCURRENT_JOBS: Admission ceiling (default: half of GOMAXPROCS)
//   - JOB_TIMEOUT_MULTIPLIER, JOB_TIMEOUT_MIN, JOB_TIMEOUT_FALLBACK: Encode
//     ceiling as max(min, duration*multiplier), or the fallback when the
//     duration is unknown (default: 4, 2m, 2h)
//   - PROGRESS_INTERVAL: Minimum gap between progress events (default: 250ms)
//   - MAX_INPUT_BYTES: Largest accepted input (default: 500 MiB)
//   - MIN_FREE_DISK_BYTES, MIN_FREE_INODES: Work volume floors (default: 1 GiB, 1024)
//   - FFMPEG_PATH, FFPROBE_PATH: Engine binaries (default: from PATH)
//   - THUMBNAIL_WIDTH: Thumbnail width in pixels (default: 640)
//   - JOB_HISTORY_RETENTION: Ledger retention (default: 720h)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// The Log* functions print the banner-and-section startup log:
// [LogMemoryConfig], [LogEngineInit], [LogLedgerInit], [LogAdmissionInit],
// [LogHTTPRoutes], [LogServerStarted] and the shutdown steps.
package startup
