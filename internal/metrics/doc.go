// Package metrics provides Prometheus instrumentation for the transcoding
// service.
//
// All metrics are prefixed with "media_transcoder_" and registered through
// promauto on the default registry. They are served on the separate metrics
// listener (METRICS_PORT).
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight
//
// ## Transcode Metrics
//
// Requests are counted by execution mode and aggregate outcome; encode jobs
// by preset and terminal state:
//   - RequestsTotal, RequestsInFlight
//   - JobsTotal, JobFailuresTotal, JobDuration, JobsRunning
//   - ProgressEventsTotal, ProgressSnapshotsCoalesced
//
// ## Admission Metrics
//
//   - AdmissionCapacity, AdmissionSlotsInUse, AdmissionRejectionsTotal
//
// ## Workspace Metrics
//
//   - WorkspacesActive, WorkspaceAcquireFailures, WorkspaceCleanupErrors
//   - WorkspaceFreeBytes, WorkspaceFreeInodes (polled by Collector)
//
// ## Probe and Thumbnail Metrics
//
//   - ProbeTotal, ProbeDuration
//   - ThumbnailGenerationsTotal, ThumbnailGenerationDuration, ThumbnailTimestampClamped
//
// ## Ledger, Filesystem and Memory Metrics
//
//   - DBQueryTotal, DBQueryDuration, LedgerJobsRecorded
//   - Filesystem* (recorded through NewFilesystemObserver)
//   - GoMemLimit, GoMemAllocBytes, GoMemSysBytes, MemoryUsageRatio, MemoryPaused, MemoryGCPauses
//
// # Usage
//
//	metrics.InitializeMetrics(presets.Names())
//	collector := metrics.NewCollector(provider, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
