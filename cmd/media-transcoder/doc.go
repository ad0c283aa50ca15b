// Package main provides the entry point for the media transcoding service.
//
// The service accepts a local input file plus a list of preset tier names,
// encodes the file once per preset with FFmpeg and streams progress back
// to the caller as Server-Sent Events. It also extracts metadata and
// renders single-frame JPEG thumbnails.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: Environment variables, then CONFIG_FILE, then defaults
//  3. Component Initialization:
//     - Memory Monitor: Feeds the admission controller's pressure check
//     - Engine: Locates ffmpeg and ffprobe
//     - libvips: Thumbnail resizing (falls back to pure Go when unavailable)
//     - Workspaces: Sweeps directories left by a previous run
//     - Job Ledger: SQLite history of finished jobs (optional)
//     - Metrics Collector: Ledger size, free disk and runtime stats
//  4. HTTP Server Setup: Routes, middleware and the metrics listener
//  5. Graceful Shutdown: Handles SIGINT/SIGTERM
//
// # HTTP Server
//
// The main server (default port 8080) has no write timeout so progress
// streams can run for the length of an encode. Routes:
//
//	POST   /api/transcode            start a request, response is text/event-stream
//	GET    /api/transcode            list in-flight requests
//	DELETE /api/transcode/{id}       cancel a request
//	GET    /api/jobs/{requestId}     per-job history from the ledger
//	POST   /api/metadata             probe an input
//	POST   /api/thumbnail            render a JPEG frame
//	GET    /api/presets              list preset tiers
//	GET    /health, /livez, /readyz  health probes
//
// The metrics server (default port 9090) serves /metrics.
//
// # Environment Variables
//
//   - WORK_DIR: Root for per-job scratch directories
//   - OUTPUT_DIR: Where finished renditions are stored
//   - DATABASE_DIR: Directory for the SQLite job ledger
//   - CONFIG_FILE: Optional TOML file; environment variables win over it
//   - PORT, METRICS_PORT, METRICS_ENABLED, LOG_HEALTH_CHECKS
//   - MAX_CONCURRENT_JOBS: Admission capacity (default: derived from CPU count)
//   - JOB_TIMEOUT_MULTIPLIER, JOB_TIMEOUT_MIN, JOB_TIMEOUT_FALLBACK
//   - PROGRESS_INTERVAL: Minimum gap between progress events
//   - MAX_INPUT_BYTES: Largest accepted input
//   - FFMPEG_PATH, FFPROBE_PATH, THUMBNAIL_WIDTH
//   - MIN_FREE_DISK_BYTES, MIN_FREE_INODES: Workspace admission floors
//   - JOB_HISTORY_RETENTION: Ledger row lifetime
//   - LOG_LEVEL: debug/info/warn/error
//   - GOMEMLIMIT, MEMORY_LIMIT, MEMORY_RATIO
//
// # Graceful Shutdown
//
//  1. Mark the service not ready
//  2. Cancel in-flight requests and wait for their jobs to settle
//  3. Shutdown the main HTTP server (30s timeout)
//  4. Shutdown the metrics server
//  5. Stop the metrics collector, memory monitor and ledger pruning
//  6. Close the job ledger
//  7. Shutdown libvips
//
// # Build Requirements
//
// CGO is required for SQLite and libvips. FFmpeg and ffprobe must be on
// PATH or configured explicitly.
//
//	go build -o media-transcoder ./cmd/media-transcoder
//
// # Related Packages
//
//   - [media-transcoder/internal/transcode]: Request coordination
//   - [media-transcoder/internal/encode]: Single-preset encode jobs
//   - [media-transcoder/internal/admission]: Concurrency and memory gating
//   - [media-transcoder/internal/handlers]: HTTP request handlers
//   - [media-transcoder/internal/startup]: Configuration and initialization
package main
