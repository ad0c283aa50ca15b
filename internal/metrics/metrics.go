package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_transcoder_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Transcode request and encode job metrics
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_requests_total",
			Help: "Total number of transcode requests by execution mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: sequential|parallel; outcome: success|partial|failed|rejected|cancelled
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_requests_in_flight",
			Help: "Number of transcode requests currently being coordinated",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_jobs_total",
			Help: "Total number of encode jobs by preset and terminal state",
		},
		[]string{"preset", "state"},
	)

	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_job_failures_total",
			Help: "Total number of encode job failures by reason code",
		},
		[]string{"code"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_transcoder_job_duration_seconds",
			Help:    "Encode job wall-clock duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"preset"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_jobs_running",
			Help: "Number of encode jobs currently in the running state",
		},
	)

	ProgressEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_progress_events_total",
			Help: "Total number of events delivered to progress streams by type",
		},
		[]string{"type"},
	)

	ProgressSnapshotsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_transcoder_progress_snapshots_coalesced_total",
			Help: "Engine progress blocks folded into a later snapshot by the rate limiter",
		},
	)
)

// Admission metrics
var (
	AdmissionCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_admission_capacity",
			Help: "Configured ceiling of concurrently running encode jobs",
		},
	)

	AdmissionSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_admission_slots_in_use",
			Help: "Number of admission slots currently granted",
		},
	)

	AdmissionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_admission_rejections_total",
			Help: "Total number of rejected slot acquisitions by reason",
		},
		[]string{"reason"}, // "capacity", "memory_pressure", "closed"
	)
)

// Workspace metrics
var (
	WorkspacesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_workspaces_active",
			Help: "Number of job workspaces currently on disk",
		},
	)

	WorkspaceAcquireFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_workspace_acquire_failures_total",
			Help: "Total number of failed workspace allocations by reason",
		},
		[]string{"reason"}, // "disk", "inodes", "mkdir"
	)

	WorkspaceCleanupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_transcoder_workspace_cleanup_errors_total",
			Help: "Total number of workspace deletions that failed",
		},
	)

	WorkspaceFreeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_workspace_free_bytes",
			Help: "Free bytes on the workspace volume",
		},
	)

	WorkspaceFreeInodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_workspace_free_inodes",
			Help: "Free inodes on the workspace volume",
		},
	)
)

// Probe and thumbnail metrics
var (
	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_probe_total",
			Help: "Total number of metadata extractions by status",
		},
		[]string{"status"},
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_transcoder_probe_duration_seconds",
			Help:    "Metadata extraction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_thumbnail_generations_total",
			Help: "Total number of thumbnail generations by status",
		},
		[]string{"status"},
	)

	ThumbnailGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_transcoder_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ThumbnailTimestampClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_transcoder_thumbnail_timestamp_clamped_total",
			Help: "Thumbnail requests whose timestamp was past the end of the media",
		},
	)
)

// Job ledger metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_db_queries_total",
			Help: "Total number of job ledger queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_transcoder_db_query_duration_seconds",
			Help:    "Job ledger query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	LedgerJobsRecorded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_ledger_jobs",
			Help: "Number of job outcomes held in the ledger",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_transcoder_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations by volume",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations by volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a transient error",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after at least one retry",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemTransientErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_transcoder_filesystem_transient_errors_total",
			Help: "Stale handle and interrupted call errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes (0 when unset)",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_go_mem_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_go_mem_sys_bytes",
			Help: "Total bytes of memory obtained from the OS",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_memory_usage_ratio",
			Help: "Heap allocation as a ratio of the memory limit (0.0-1.0)",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_transcoder_memory_paused",
			Help: "Whether new jobs are refused due to memory pressure (1 = refusing)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_transcoder_memory_gc_pauses_total",
			Help: "Total number of times admission was paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_transcoder_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
