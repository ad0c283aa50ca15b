package encode

import (
	"time"

	"media-transcoder/internal/engine"
	"media-transcoder/internal/metrics"
)

// tracker turns engine status blocks into snapshots, keeping percent and
// elapsed non-decreasing and publishing at most one snapshot per interval.
// A snapshot that arrives too soon replaces any earlier pending one and is
// sent by a later block or by flush.
type tracker struct {
	job      *Job
	duration time.Duration
	interval time.Duration
	publish  func(ProgressSnapshot)
	now      func() time.Time

	lastEmit   time.Time
	pending    *ProgressSnapshot
	elapsed    time.Duration
	maxPercent float64
}

func newTracker(job *Job, duration, interval time.Duration, publish func(ProgressSnapshot)) *tracker {
	return &tracker{
		job:      job,
		duration: duration,
		interval: interval,
		publish:  publish,
		now:      time.Now,
	}
}

func (t *tracker) observe(s engine.Status) {
	if s.HasOutTime && s.OutTime > t.elapsed {
		t.elapsed = s.OutTime
	}

	snap := ProgressSnapshot{Elapsed: t.elapsed, FPS: s.FPS, Bitrate: s.Bitrate}
	if t.duration > 0 {
		p := float64(t.elapsed) / float64(t.duration) * 100
		t.setPercent(&snap, p)
	}
	t.job.setProgress(snap)

	if t.pending != nil {
		metrics.ProgressSnapshotsCoalesced.Inc()
	}
	t.pending = &snap

	if s.End || t.lastEmit.IsZero() || t.now().Sub(t.lastEmit) >= t.interval {
		t.flush()
	}
}

func (t *tracker) setPercent(snap *ProgressSnapshot, p float64) {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p < t.maxPercent {
		p = t.maxPercent
	}
	t.maxPercent = p
	snap.Percent = &p
}

// flush publishes the pending snapshot, if any.
func (t *tracker) flush() {
	if t.pending == nil {
		return
	}
	t.publish(*t.pending)
	t.pending = nil
	t.lastEmit = t.now()
}

// complete publishes a final 100% snapshot when the duration is known.
func (t *tracker) complete() {
	if t.duration <= 0 || t.maxPercent >= 100 {
		return
	}
	snap := t.job.LastProgress()
	t.setPercent(&snap, 100)
	t.job.setProgress(snap)
	t.pending = &snap
	t.flush()
}
