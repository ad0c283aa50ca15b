package transcode

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"media-transcoder/internal/admission"
	"media-transcoder/internal/artifacts"
	"media-transcoder/internal/encode"
	"media-transcoder/internal/events"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/jobstore"
	"media-transcoder/internal/metrics"
	"media-transcoder/internal/presets"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/workspace"

	"github.com/google/uuid"
)

// Prober reads media metadata. *probe.Extractor implements it.
type Prober interface {
	Extract(ctx context.Context, input probe.InputHandle) (*probe.Metadata, error)
}

// Ledger persists job outcomes. *jobstore.Store implements it.
type Ledger interface {
	Save(ctx context.Context, rec jobstore.Record) error
}

// Config wires a Coordinator to its collaborators. Prober and Ledger are
// optional.
type Config struct {
	Presets    *presets.Registry
	Admission  *admission.Controller
	Workspaces *workspace.Manager
	Runner     *encode.Runner
	Artifacts  artifacts.Store
	Prober     Prober
	Ledger     Ledger
	// MaxInputBytes caps the input size; 0 disables the check.
	MaxInputBytes int64
}

// Coordinator turns transcode requests into encode jobs.
type Coordinator struct {
	config Config

	mu     sync.Mutex
	runs   map[string]*Run
	closed bool
	wg     sync.WaitGroup
}

// New creates a Coordinator.
func New(config Config) (*Coordinator, error) {
	switch {
	case config.Presets == nil:
		return nil, errors.New("transcode: preset registry is required")
	case config.Admission == nil:
		return nil, errors.New("transcode: admission controller is required")
	case config.Workspaces == nil:
		return nil, errors.New("transcode: workspace manager is required")
	case config.Runner == nil:
		return nil, errors.New("transcode: encode runner is required")
	case config.Artifacts == nil:
		return nil, errors.New("transcode: artifact store is required")
	}
	return &Coordinator{
		config: config,
		runs:   make(map[string]*Run),
	}, nil
}

// Start validates req, takes admission slots and begins encoding in the
// background. Validation failures and admission rejections are returned
// before anything is allocated or started.
//
// Cancelling ctx cancels the run and stops event delivery. Use Run.Cancel
// to stop the encodes while still receiving the terminal event.
func (c *Coordinator) Start(ctx context.Context, req Request) (*Run, error) {
	resolved, err := req.resolve(c.config.Presets)
	if err != nil {
		return nil, err
	}
	if err := req.Input.Validate(c.config.MaxInputBytes); err != nil {
		return nil, err
	}
	input, err := req.Input.Resolve()
	if err != nil {
		return nil, err
	}
	if err := input.Validate(c.config.MaxInputBytes); err != nil {
		return nil, err
	}
	req.Input = input

	first, err := c.config.Admission.TryAcquire()
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(req.mode(), "rejected").Inc()
		return nil, err
	}
	slots := []*admission.Slot{first}
	if req.Parallel {
		for len(slots) < len(resolved) {
			s, err := c.config.Admission.TryAcquire()
			if err != nil {
				break
			}
			slots = append(slots, s)
		}
	}

	// Registration and the shutdown check share c.mu so Shutdown either
	// sees this run or makes Start give its slots back.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		for _, s := range slots {
			s.Release()
		}
		metrics.RequestsTotal.WithLabelValues(req.mode(), "rejected").Inc()
		return nil, failure.Wrap(failure.CodeResourceExhausted, "admission", &admission.Rejection{
			Reason:   admission.ReasonClosed,
			InUse:    c.config.Admission.InUse(),
			Capacity: c.config.Admission.Capacity(),
		})
	}
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	run := newRun(c, id, req, resolved, slots, cancel)
	c.runs[id] = run
	c.wg.Add(1)
	c.mu.Unlock()

	run.events = events.Publish(ctx, id, run.source)
	metrics.RequestsInFlight.Inc()

	run.log.Info("Transcode started: %d preset(s), %s, %d slot(s)", len(resolved), req.mode(), len(slots))

	go run.loop(runCtx)
	return run, nil
}

// Cancel cancels the run with the given id. It reports whether the run was
// found.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	run, ok := c.runs[id]
	c.mu.Unlock()
	if ok {
		run.Cancel()
	}
	return ok
}

// Get returns an in-flight run.
func (c *Coordinator) Get(id string) (*Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[id]
	return run, ok
}

// Active describes every in-flight run, oldest first.
func (c *Coordinator) Active() []Status {
	c.mu.Lock()
	runs := make([]*Run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	statuses := make([]Status, 0, len(runs))
	for _, r := range runs {
		statuses = append(statuses, r.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.Before(statuses[j].StartedAt)
	})
	return statuses
}

// Shutdown refuses new work, cancels in-flight runs and waits for their
// engine processes to exit and workspaces to be released.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, r := range c.runs {
		r.Cancel()
	}
	c.mu.Unlock()
	c.config.Admission.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) forget(id string) {
	c.mu.Lock()
	delete(c.runs, id)
	c.mu.Unlock()
}

func (c *Coordinator) record(ctx context.Context, run *Run, position int, o Outcome) {
	if c.config.Ledger == nil {
		return
	}
	rec := jobstore.Record{
		JobID:      run.jobs[position].ID,
		RequestID:  run.ID,
		Position:   position,
		Preset:     o.Preset,
		State:      string(o.State),
		InputPath:  run.Request.Input.Path,
		OutputPath: o.OutputPath,
		ElapsedMs:  o.Elapsed.Milliseconds(),
		FinishedAt: time.Now(),
	}
	if o.Err != nil {
		rec.Code = string(o.Err.Code)
		rec.Message = o.Err.Detail()
	}
	// Cancelled jobs are recorded too.
	if err := c.config.Ledger.Save(context.WithoutCancel(ctx), rec); err != nil {
		run.log.Warn("Failed to record job %s: %v", rec.JobID, err)
	}
}

// Outcome classification for the request-level metric.
func requestOutcome(result Result, cancelled bool) string {
	switch {
	case cancelled:
		return "cancelled"
	case result.Completed() == len(result.Outcomes):
		return "success"
	case result.Completed() > 0:
		return "partial"
	default:
		return "failed"
	}
}

// terminalEvent ends the stream: complete when at least one preset
// produced output, otherwise an error carrying the first failure. A
// cancelled run always ends with a cancellation error.
func terminalEvent(result Result, cancelled bool) events.Event {
	if !cancelled && result.Completed() > 0 {
		return events.Complete(result.RequestID, result)
	}

	var err error
	switch {
	case cancelled:
		err = failure.New(failure.CodeCancelled, "transcode", "request cancelled")
	case result.FirstError() != nil:
		err = result.FirstError()
	default:
		err = failure.New(failure.CodeInternal, "transcode", "no preset completed")
	}
	ev := events.Failed(result.RequestID, err)
	ev.Result = result
	return ev
}

var _ Ledger = (*jobstore.Store)(nil)
var _ Prober = (*probe.Extractor)(nil)
