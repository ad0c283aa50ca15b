package encode

import (
	"fmt"
	"sync"
	"time"

	"media-transcoder/internal/failure"
	"media-transcoder/internal/presets"
)

// State is an encode job's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StatePending: {StateRunning, StateFailed, StateCancelled},
	StateRunning: {StateCompleted, StateFailed, StateCancelled},
}

// ProgressSnapshot is one rate-limited progress report. Percent is nil
// when the input duration is unknown.
type ProgressSnapshot struct {
	Percent *float64      `json:"percent,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	FPS     float64       `json:"fps"`
	Bitrate string        `json:"bitrate,omitempty"`
}

// Job is one (input, preset) unit of work. It is owned by the coordinator
// that created it; accessors are safe to call from other goroutines.
type Job struct {
	ID        string
	RequestID string
	Preset    presets.Preset

	mu           sync.Mutex
	state        State
	workspaceDir string
	outputPath   string
	last         ProgressSnapshot
	err          *failure.Error
	startedAt    time.Time
	finishedAt   time.Time
}

// NewJob creates a pending job.
func NewJob(requestID string, p presets.Preset) *Job {
	return &Job{
		ID:        requestID + "-" + p.Name,
		RequestID: requestID,
		Preset:    p,
		state:     StatePending,
	}
}

func (j *Job) transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, allowed := range transitions[j.state] {
		if allowed == to {
			j.state = to
			switch {
			case to == StateRunning:
				j.startedAt = time.Now()
			case to.Terminal():
				j.finishedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("encode: job %s cannot move from %s to %s", j.ID, j.state, to)
}

// Fail moves the job to failed (or cancelled for a cancellation error)
// without running it. Used when a job never gets a workspace or slot.
func (j *Job) Fail(err error) {
	fe := failure.As(err)
	if fe == nil {
		fe = failure.New(failure.CodeInternal, "encode", "job failed without an error")
	}
	fe = fe.WithJob(j.ID, j.Preset.Name)
	to := StateFailed
	if fe.Code == failure.CodeCancelled {
		to = StateCancelled
	}
	if j.transition(to) == nil {
		j.mu.Lock()
		j.err = fe
		j.mu.Unlock()
	}
}

func (j *Job) finish(to State, err *failure.Error, output string) {
	if terr := j.transition(to); terr != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.err = err.WithJob(j.ID, j.Preset.Name)
	}
	j.outputPath = output
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// WorkspaceDir returns the job's scratch directory, or "" before it runs.
func (j *Job) WorkspaceDir() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.workspaceDir
}

// OutputPath returns the encoded file, set only on completion.
func (j *Job) OutputPath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outputPath
}

// SetOutputPath records where the output was moved after completion.
func (j *Job) SetOutputPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outputPath = path
}

// LastProgress returns the most recent snapshot.
func (j *Job) LastProgress() ProgressSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

func (j *Job) setProgress(s ProgressSnapshot) {
	j.mu.Lock()
	j.last = s
	j.mu.Unlock()
}

// Err returns the failure, or nil unless the job failed or was cancelled.
func (j *Job) Err() *failure.Error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Elapsed returns the wall-clock run time, or 0 if the job never ran.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startedAt.IsZero() {
		return 0
	}
	if j.finishedAt.IsZero() {
		return time.Since(j.startedAt)
	}
	return j.finishedAt.Sub(j.startedAt)
}
