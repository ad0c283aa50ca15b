package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"media-transcoder/internal/logging"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// has been killed.
const waitDelay = 5 * time.Second

// stderrTailBytes is how much engine diagnostic output is kept per process.
const stderrTailBytes = 8 * 1024

// ErrNotFound is returned by Check when a binary is not on PATH.
var ErrNotFound = errors.New("engine binary not found")

// Process is one running engine invocation.
type Process interface {
	// Progress is the engine's machine-readable status stream. It must be
	// drained before calling Wait.
	Progress() io.Reader
	// Wait blocks until the process has exited.
	Wait() error
	// Kill terminates the process and all of its children.
	Kill() error
	// Stderr returns the tail of the diagnostic output.
	Stderr() string
}

// Launcher starts long-running engine processes.
type Launcher interface {
	Launch(ctx context.Context, args []string) (Process, error)
}

// Runner runs short engine commands to completion.
type Runner interface {
	Output(ctx context.Context, args []string) (stdout, stderr []byte, err error)
}

// Command is an engine binary. It implements both Launcher and Runner.
// Every process runs in its own process group and the whole group is
// killed when the context ends.
type Command struct {
	Path string
}

// Check verifies that the binary can be found.
func (c Command) Check() (string, error) {
	resolved, err := exec.LookPath(c.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, c.Path)
	}
	return resolved, nil
}

func (c Command) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

// Output runs the command and returns stdout and stderr separately.
func (c Command) Output(ctx context.Context, args []string) ([]byte, []byte, error) {
	cmd := c.command(ctx, args)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("engine: %s %s", c.Path, strings.Join(args, " "))
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Launch starts the command with stdout attached to Progress.
func (c Command) Launch(ctx context.Context, args []string) (Process, error) {
	cmd := c.command(ctx, args)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	tail := newTailBuffer(stderrTailBytes)
	cmd.Stderr = tail

	logging.Debug("engine: %s %s", c.Path, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}

	return &process{cmd: cmd, stdout: stdout, stderr: tail}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr *tailBuffer
}

func (p *process) Progress() io.Reader { return p.stdout }
func (p *process) Wait() error         { return p.cmd.Wait() }
func (p *process) Kill() error         { return killGroup(p.cmd) }
func (p *process) Stderr() string      { return p.stderr.String() }

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
