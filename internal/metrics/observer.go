package metrics

import "media-transcoder/internal/filesystem"

type filesystemObserver struct{}

// NewFilesystemObserver records filesystem calls into the Filesystem*
// collectors.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, op string, seconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, op).Observe(seconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, op).Inc()
	}
}

func (filesystemObserver) ObserveRetry(volume, op string, outcome filesystem.RetryOutcome) {
	switch outcome {
	case filesystem.RetryTransient:
		FilesystemTransientErrors.WithLabelValues(op, volume).Inc()
	case filesystem.RetryAttempt:
		FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
	case filesystem.RetryRecovered:
		FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
	case filesystem.RetryExhausted:
		FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
	}
}
