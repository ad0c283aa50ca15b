package encode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"media-transcoder/internal/engine"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/filesystem"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/workspace"
)

// OutputName is the file an encode writes inside its workspace.
const OutputName = "output.mp4"

// Config configures a Runner.
type Config struct {
	Launcher engine.Launcher
	// Threads is passed to the encoder; 0 lets it decide.
	Threads int
	// The job ceiling is max(TimeoutFloor, duration*TimeoutMultiplier),
	// or TimeoutFallback when the duration is unknown.
	TimeoutMultiplier float64
	TimeoutFloor      time.Duration
	TimeoutFallback   time.Duration
	// ProgressInterval is the minimum gap between published snapshots.
	ProgressInterval time.Duration
}

// Runner drives one encoder process per job.
type Runner struct {
	config Config
}

// NewRunner fills zero config values with defaults.
func NewRunner(config Config) *Runner {
	if config.TimeoutMultiplier <= 0 {
		config.TimeoutMultiplier = 4
	}
	if config.TimeoutFloor <= 0 {
		config.TimeoutFloor = 2 * time.Minute
	}
	if config.TimeoutFallback <= 0 {
		config.TimeoutFallback = 2 * time.Hour
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 250 * time.Millisecond
	}
	return &Runner{config: config}
}

// Timeout returns the ceiling for an input of the given duration.
func (r *Runner) Timeout(duration time.Duration) time.Duration {
	if duration <= 0 {
		return r.config.TimeoutFallback
	}
	scaled := time.Duration(float64(duration) * r.config.TimeoutMultiplier)
	if scaled < r.config.TimeoutFloor {
		return r.config.TimeoutFloor
	}
	return scaled
}

// Run encodes input into ws for job, calling publish with rate-limited
// progress. The caller must hold an admission slot for the whole call. Run
// returns once the engine process has exited and been reaped; the returned
// error is job.Err(), or nil on completion.
func (r *Runner) Run(ctx context.Context, job *Job, input probe.InputHandle, ws *workspace.Workspace, duration time.Duration, publish func(ProgressSnapshot)) error {
	if job.State() != StatePending {
		return fmt.Errorf("encode: job %s is %s, not pending", job.ID, job.State())
	}
	if publish == nil {
		publish = func(ProgressSnapshot) {}
	}

	log := logging.With("request", job.RequestID, "preset", job.Preset.Name)
	output := ws.Path(OutputName)

	job.mu.Lock()
	job.workspaceDir = ws.Dir()
	job.mu.Unlock()

	defer func() {
		state := job.State()
		metrics.JobsTotal.WithLabelValues(job.Preset.Name, string(state)).Inc()
		metrics.JobDuration.WithLabelValues(job.Preset.Name).Observe(job.Elapsed().Seconds())
		if fe := job.Err(); fe != nil {
			metrics.JobFailuresTotal.WithLabelValues(string(fe.Code)).Inc()
		}
	}()

	timeout := r.Timeout(duration)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := engine.EncodeArgs(input.Path, output, job.Preset, r.config.Threads)
	proc, err := r.config.Launcher.Launch(jobCtx, args)
	if err != nil {
		if ctx.Err() != nil {
			job.finish(StateCancelled, failure.As(ctx.Err()), "")
		} else {
			job.finish(StateFailed, failure.Wrap(failure.CodeEngineFailure, "encode.launch", err), "")
		}
		log.Warn("Encoder failed to start: %v", err)
		return job.errOrNil()
	}

	if err := job.transition(StateRunning); err != nil {
		_ = proc.Kill()
		_ = proc.Wait()
		return err
	}
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()
	log.Info("Encoding started (timeout %v)", timeout)

	t := newTracker(job, duration, r.config.ProgressInterval, publish)
	if perr := engine.ParseProgress(proc.Progress(), t.observe); perr != nil {
		log.Debug("Progress stream error: %v", perr)
	}
	waitErr := proc.Wait()
	t.flush()

	switch {
	case ctx.Err() != nil:
		job.finish(StateCancelled, failure.Wrap(failure.CodeCancelled, "encode", ctx.Err()), "")
		log.Info("Encoding cancelled")
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		job.finish(StateFailed, failure.Errorf(failure.CodeTimeout, "encode",
			"encoder exceeded %v ceiling", timeout), "")
		log.Warn("Encoding timed out after %v", timeout)
	case waitErr != nil:
		job.finish(StateFailed, &failure.Error{
			Code:    failure.CodeEngineFailure,
			Op:      "encode",
			Message: proc.Stderr(),
			Err:     waitErr,
		}, "")
		log.Warn("Encoder exited with error: %v", waitErr)
	default:
		if err := checkOutput(output); err != nil {
			job.finish(StateFailed, failure.Wrap(failure.CodeEngineFailure, "encode", err), "")
			log.Warn("Encoder reported success but %v", err)
			break
		}
		t.complete()
		job.finish(StateCompleted, nil, output)
		log.Info("Encoding completed in %v", job.Elapsed().Round(time.Millisecond))
	}

	return job.errOrNil()
}

// errOrNil avoids handing back a typed nil inside an error interface.
func (j *Job) errOrNil() error {
	if fe := j.Err(); fe != nil {
		return fe
	}
	return nil
}

func checkOutput(path string) error {
	info, err := filesystem.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("output file is missing")
		}
		return fmt.Errorf("output file unreadable: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("output file is empty")
	}
	return nil
}
