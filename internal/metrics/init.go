package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics(presets []string) {
	for _, mode := range []string{"sequential", "parallel"} {
		for _, outcome := range []string{"success", "partial", "failed", "rejected", "cancelled"} {
			RequestsTotal.WithLabelValues(mode, outcome)
		}
	}

	for _, preset := range presets {
		for _, state := range []string{"completed", "failed", "cancelled"} {
			JobsTotal.WithLabelValues(preset, state)
		}
		JobDuration.WithLabelValues(preset)
	}

	for _, code := range []string{"resource_exhausted", "engine_failure", "timeout", "cancelled", "internal"} {
		JobFailuresTotal.WithLabelValues(code)
	}

	for _, typ := range []string{"progress", "complete", "error"} {
		ProgressEventsTotal.WithLabelValues(typ)
	}

	for _, reason := range []string{"capacity", "memory_pressure", "closed"} {
		AdmissionRejectionsTotal.WithLabelValues(reason)
	}

	for _, reason := range []string{"disk", "inodes", "mkdir"} {
		WorkspaceAcquireFailures.WithLabelValues(reason)
	}

	for _, status := range []string{"success", "error"} {
		ProbeTotal.WithLabelValues(status)
		ThumbnailGenerationsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"initialize_schema", "record_job", "jobs_for_request", "count_jobs", "prune"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, vol := range []string{"work", "output", "unknown"} {
		for _, op := range []string{"stat", "open", "remove"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemTransientErrors.WithLabelValues(op, vol)
		}
	}
}
