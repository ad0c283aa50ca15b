package transcode

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"media-transcoder/internal/admission"
	"media-transcoder/internal/encode"
	"media-transcoder/internal/events"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
)

// Run is one in-flight request.
type Run struct {
	ID        string
	Request   Request
	StartedAt time.Time

	c       *Coordinator
	log     logging.Scope
	presets []presets.Preset
	jobs    []*encode.Job

	slots    []*admission.Slot
	cancel   context.CancelFunc
	canceled atomic.Bool
	failed   atomic.Bool

	source chan events.Event
	events <-chan events.Event

	done     chan struct{}
	doneOnce sync.Once
	result   Result
}

func newRun(c *Coordinator, id string, req Request, resolved []presets.Preset, slots []*admission.Slot, cancel context.CancelFunc) *Run {
	jobs := make([]*encode.Job, len(resolved))
	for i, p := range resolved {
		jobs[i] = encode.NewJob(id, p)
	}
	return &Run{
		ID:        id,
		Request:   req,
		StartedAt: time.Now(),
		c:         c,
		log:       logging.With("request", id),
		presets:   resolved,
		jobs:      jobs,
		slots:     slots,
		cancel:    cancel,
		source:    make(chan events.Event, 64),
		done:      make(chan struct{}),
	}
}

// Events returns the progress stream. It carries exactly one terminal
// event and is then closed.
func (r *Run) Events() <-chan events.Event {
	return r.events
}

// Cancel stops every job of the run. Running engines are killed and their
// workspaces released; the stream still ends with a terminal event.
func (r *Run) Cancel() {
	if r.canceled.CompareAndSwap(false, true) {
		r.log.Info("Cancellation requested")
	}
	r.cancel()
}

// Wait blocks until the run has finished and its stream is closed, then
// returns the result. Events not yet received are discarded.
func (r *Run) Wait() Result {
	for range r.events {
	}
	<-r.done
	return r.result
}

// Done is closed when every job has reached a terminal state and the run's
// slots have been returned.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Status is a point-in-time view of a run.
type Status struct {
	RequestID string      `json:"requestId"`
	Input     string      `json:"input"`
	Parallel  bool        `json:"parallel"`
	Slots     int         `json:"slots"`
	StartedAt time.Time   `json:"startedAt"`
	Jobs      []JobStatus `json:"jobs"`
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	Preset  string       `json:"preset"`
	State   encode.State `json:"state"`
	Percent *float64     `json:"percent,omitempty"`
}

// Status describes the run.
func (r *Run) Status() Status {
	s := Status{
		RequestID: r.ID,
		Input:     r.Request.Input.Path,
		Parallel:  r.Request.Parallel,
		Slots:     len(r.slots),
		StartedAt: r.StartedAt,
		Jobs:      make([]JobStatus, len(r.jobs)),
	}
	for i, j := range r.jobs {
		s.Jobs[i] = JobStatus{Preset: j.Preset.Name, State: j.State(), Percent: j.LastProgress().Percent}
	}
	return s
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.source)
	defer events.Guard(r.ID, r.source)
	defer func() { r.finish(nil, r.cancelledBy(ctx)) }()

	outcomes := r.execute(ctx)
	result := Result{RequestID: r.ID, Outcomes: outcomes}
	cancelled := r.cancelledBy(ctx)
	r.finish(&result, cancelled)
	r.source <- terminalEvent(result, cancelled)
}

func (r *Run) cancelledBy(ctx context.Context) bool {
	return r.canceled.Load() || ctx.Err() != nil
}

// finish returns the run's slots and publishes the result. A nil result
// (the deferred call after a panic) is rebuilt from the job states.
func (r *Run) finish(result *Result, cancelled bool) {
	r.doneOnce.Do(func() {
		if result == nil {
			rebuilt := Result{RequestID: r.ID, Outcomes: make([]Outcome, len(r.jobs))}
			for i, j := range r.jobs {
				rebuilt.Outcomes[i] = outcomeOf(j)
			}
			result = &rebuilt
		}
		r.result = *result

		for _, s := range r.slots {
			s.Release()
		}
		r.cancel()
		r.c.forget(r.ID)

		outcome := requestOutcome(r.result, cancelled)
		metrics.RequestsTotal.WithLabelValues(r.Request.mode(), outcome).Inc()
		metrics.RequestsInFlight.Dec()
		r.log.Info("Transcode finished: %s (%d/%d presets completed) in %v",
			outcome, r.result.Completed(), len(r.result.Outcomes), time.Since(r.StartedAt).Round(time.Millisecond))

		close(r.done)
		r.c.wg.Done()
	})
}

func (r *Run) execute(ctx context.Context) []Outcome {
	duration := r.inputDuration(ctx)
	outcomes := make([]Outcome, len(r.jobs))

	if len(r.slots) <= 1 {
		for i := range r.jobs {
			outcomes[i] = r.runJob(ctx, i, duration)
		}
		return outcomes
	}

	queue := make(chan int, len(r.jobs))
	for i := range r.jobs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w, slot := range r.slots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Extra slots go back as soon as the queue is empty; the first
			// is held until the run finishes.
			if w > 0 {
				defer slot.Release()
			}
			for i := range queue {
				outcomes[i] = r.runJob(ctx, i, duration)
			}
		}()
	}
	wg.Wait()
	return outcomes
}

func (r *Run) inputDuration(ctx context.Context) time.Duration {
	if r.c.config.Prober == nil {
		return 0
	}
	md, err := r.c.config.Prober.Extract(ctx, r.Request.Input)
	if err != nil {
		r.log.Warn("Input probe failed, progress will omit percent: %v", err)
		return 0
	}
	r.log.Debug("Input: %s %s, %.2fs", md.VideoCodec, md.Resolution(), md.Duration)
	return md.DurationValue()
}

// runJob takes one job to a terminal state. A panic is confined to the job.
func (r *Run) runJob(ctx context.Context, i int, duration time.Duration) (out Outcome) {
	job := r.jobs[i]
	log := r.log.With("preset", job.Preset.Name)

	defer func() {
		if p := recover(); p != nil {
			log.Error("Job panicked: %v", p)
			job.Fail(failure.New(failure.CodeInternal, "transcode", fmt.Sprintf("internal error: %v", p)))
			out = outcomeOf(job)
			r.failed.Store(true)
			r.c.record(ctx, r, i, out)
			r.emitJobState(out)
		}
	}()

	var storeErr error
	switch {
	case ctx.Err() != nil:
		r.skip(job, failure.Wrap(failure.CodeCancelled, "transcode", ctx.Err()))
	case r.Request.FailFast && r.failed.Load():
		r.skip(job, failure.New(failure.CodeCancelled, "transcode", "skipped after an earlier preset failed"))
	default:
		storeErr = r.encode(ctx, job, duration, log)
	}

	out = outcomeOf(job)
	if out.State == encode.StateCompleted {
		switch {
		case storeErr != nil && ctx.Err() != nil:
			// Cancelled between the encode finishing and the hand-off.
			out.State = encode.StateCancelled
			out.OutputPath = ""
			out.Err = failure.Wrap(failure.CodeCancelled, "artifacts.put", storeErr).WithJob(job.ID, job.Preset.Name)
		case storeErr != nil:
			out.State = encode.StateFailed
			out.OutputPath = ""
			out.Err = failure.Wrap(failure.CodeInternal, "artifacts.put", storeErr).WithJob(job.ID, job.Preset.Name)
		default:
			out.Metadata = r.describe(ctx, out.OutputPath, log)
		}
	}
	if out.State != encode.StateCompleted {
		r.failed.Store(true)
	}

	r.c.record(ctx, r, i, out)
	r.emitJobState(out)
	return out
}

// encode runs job inside its own workspace and hands a completed output to
// the artifact store. The workspace is released before encode returns,
// whatever the outcome. The returned error is a storage failure only; the
// encode result itself is on the job.
func (r *Run) encode(ctx context.Context, job *encode.Job, duration time.Duration, log logging.Scope) error {
	ws, err := r.c.config.Workspaces.Acquire(job.ID)
	if err != nil {
		log.Warn("Workspace unavailable: %v", err)
		r.skip(job, err)
		return nil
	}
	defer func() {
		if err := ws.Release(); err != nil {
			log.Warn("Workspace cleanup failed: %v", err)
		}
	}()

	r.emit(events.Event{Type: events.TypeProgress, Preset: job.Preset.Name, State: string(encode.StateRunning)})

	publish := func(s encode.ProgressSnapshot) {
		r.emit(progressEvent(job.Preset.Name, s))
	}
	if err := r.c.config.Runner.Run(ctx, job, r.Request.Input, ws, duration, publish); err != nil {
		log.Debug("Job ended: %v", err)
		return nil
	}

	// Move the output out before the workspace goes away.
	dst, err := r.c.config.Artifacts.Put(ctx, r.ID, job.Preset.Name, job.OutputPath())
	if err != nil {
		log.Error("Failed to store output: %v", err)
		return err
	}
	job.SetOutputPath(dst)
	return nil
}

// describe probes a stored output. Metadata is informational; a probe
// failure does not fail the job.
func (r *Run) describe(ctx context.Context, path string, log logging.Scope) *probe.Metadata {
	if r.c.config.Prober == nil {
		return nil
	}
	md, err := r.c.config.Prober.Extract(ctx, probe.InputHandle{Path: path})
	if err != nil {
		log.Warn("Output probe failed: %v", err)
		return nil
	}
	return md
}

func (r *Run) skip(job *encode.Job, err error) {
	job.Fail(err)
	fe := job.Err()
	metrics.JobsTotal.WithLabelValues(job.Preset.Name, string(job.State())).Inc()
	if fe != nil {
		metrics.JobFailuresTotal.WithLabelValues(string(fe.Code)).Inc()
	}
}

func (r *Run) emit(ev events.Event) {
	ev.RequestID = r.ID
	r.source <- ev
}

func (r *Run) emitJobState(o Outcome) {
	ev := events.Event{Type: events.TypeProgress, Preset: o.Preset, State: string(o.State)}
	if o.OutputPath != "" {
		ev.Filename = filepath.Base(o.OutputPath)
	}
	if o.Err != nil {
		ev.Code = string(o.Err.Code)
		ev.ErrorMessage = o.Err.Detail()
	}
	r.emit(ev)
}

func outcomeOf(job *encode.Job) Outcome {
	return Outcome{
		Preset:     job.Preset.Name,
		State:      job.State(),
		OutputPath: job.OutputPath(),
		Elapsed:    job.Elapsed(),
		Err:        job.Err(),
	}
}

func progressEvent(preset string, s encode.ProgressSnapshot) events.Event {
	elapsed := s.Elapsed.Seconds()
	ev := events.Event{
		Type:    events.TypeProgress,
		Preset:  preset,
		Percent: s.Percent,
		Elapsed: &elapsed,
		Bitrate: s.Bitrate,
	}
	if s.FPS > 0 {
		fps := s.FPS
		ev.FPS = &fps
	}
	return ev
}
