package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-transcoder/internal/logging"
)

// Policy controls how transient filesystem errors are retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Volumes overrides the package-level labels.
	Volumes *Volumes
}

// DefaultPolicy tries four times, backing off from 50ms to at most 500ms.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   4,
		Backoff:    50 * time.Millisecond,
		MaxBackoff: 500 * time.Millisecond,
	}
}

func (p Policy) label(path string) string {
	if p.Volumes != nil {
		return p.Volumes.Label(path)
	}
	return defaultVolumes.Load().Label(path)
}

// transient reports errors worth another try: a stale NFS handle or an
// interrupted system call.
func transient(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.ESTALE || errno == syscall.EINTR
}

func retry[T any](p Policy, op, path string, fn func() (T, error)) (T, error) {
	obs := currentObserver()
	volume := p.label(path)
	start := time.Now()
	wait := p.Backoff
	attempts := max(p.Attempts, 1)

	var (
		v   T
		err error
	)
	for try := 1; ; try++ {
		v, err = fn()
		if err == nil {
			if try > 1 {
				logging.Info("%s %s recovered on attempt %d", op, path, try)
				obs.ObserveRetry(volume, op, RetryRecovered)
			}
			break
		}
		if !transient(err) {
			break
		}
		obs.ObserveRetry(volume, op, RetryTransient)
		if try == attempts {
			logging.Warn("%s %s still failing after %d attempts: %v", op, path, try, err)
			obs.ObserveRetry(volume, op, RetryExhausted)
			break
		}

		obs.ObserveRetry(volume, op, RetryAttempt)
		logging.Debug("%s %s: %v, retrying in %v", op, path, err, wait)
		time.Sleep(wait)
		wait = min(wait*2, p.MaxBackoff)
	}

	obs.ObserveOperation(volume, op, time.Since(start).Seconds(), err)
	return v, err
}

// Stat is os.Stat under the policy.
func (p Policy) Stat(path string) (os.FileInfo, error) {
	return retry(p, "stat", path, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// Open is os.Open under the policy.
func (p Policy) Open(path string) (*os.File, error) {
	return retry(p, "open", path, func() (*os.File, error) {
		return os.Open(path)
	})
}

// RemoveAll is os.RemoveAll under the policy.
func (p Policy) RemoveAll(path string) error {
	_, err := retry(p, "remove", path, func() (struct{}, error) {
		return struct{}{}, os.RemoveAll(path)
	})
	return err
}

// Stat calls DefaultPolicy().Stat.
func Stat(path string) (os.FileInfo, error) { return DefaultPolicy().Stat(path) }

// Open calls DefaultPolicy().Open.
func Open(path string) (*os.File, error) { return DefaultPolicy().Open(path) }

// RemoveAll calls DefaultPolicy().RemoveAll.
func RemoveAll(path string) error { return DefaultPolicy().RemoveAll(path) }
