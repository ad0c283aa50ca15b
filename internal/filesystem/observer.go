package filesystem

import "sync/atomic"

// RetryOutcome classifies a retry event.
type RetryOutcome string

const (
	// RetryTransient is recorded for every transient error seen.
	RetryTransient RetryOutcome = "transient"
	// RetryAttempt is recorded before each sleep-and-retry.
	RetryAttempt RetryOutcome = "attempt"
	// RetryRecovered means a later attempt succeeded.
	RetryRecovered RetryOutcome = "recovered"
	// RetryExhausted means every attempt failed.
	RetryExhausted RetryOutcome = "exhausted"
)

// Observer receives filesystem measurements. The metrics package supplies
// the Prometheus implementation.
type Observer interface {
	ObserveOperation(volume, op string, seconds float64, err error)
	ObserveRetry(volume, op string, outcome RetryOutcome)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, float64, error) {}
func (nopObserver) ObserveRetry(string, string, RetryOutcome)       {}

type observerBox struct{ Observer }

var observer atomic.Pointer[observerBox]

// SetObserver installs o. Nil restores the no-op observer.
func SetObserver(o Observer) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&observerBox{o})
}

func currentObserver() Observer {
	if b := observer.Load(); b != nil {
		return b.Observer
	}
	return nopObserver{}
}
