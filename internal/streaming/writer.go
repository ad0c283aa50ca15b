package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"media-transcoder/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a single write took longer than the
	// configured timeout, usually a client that stopped reading.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the request context was canceled before
	// the stream completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the writer was closed or timed out
	// while idle.
	ErrStreamCanceled = errors.New("stream canceled")

	// ErrFlushUnsupported is returned when the ResponseWriter cannot flush,
	// which server-sent events require.
	ErrFlushUnsupported = errors.New("response writer does not support flushing")
)

// Config configures stream timeouts.
type Config struct {
	// WriteTimeout bounds each write to the client.
	WriteTimeout time.Duration
	// IdleTimeout ends the stream when nothing has been written for this
	// long. Heartbeats count as writes.
	IdleTimeout time.Duration
	// Heartbeat is the interval between keep-alive comments (0 disables).
	Heartbeat time.Duration
}

// DefaultConfig returns defaults suited to progress streams: encodes can
// go quiet for a while between presets, so heartbeats keep proxies from
// closing the connection.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
		Heartbeat:    15 * time.Second,
	}
}

// TimeoutWriter wraps an http.ResponseWriter with per-write and idle
// timeouts. Every successful write is flushed.
type TimeoutWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	ctx     context.Context
	cancel  context.CancelCauseFunc
	config  Config
	started time.Time
	idle    *time.Timer

	mu           sync.Mutex
	bytesWritten int64
}

// NewTimeoutWriter creates a TimeoutWriter. It fails if w cannot flush.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config Config) (*TimeoutWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrFlushUnsupported
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	writerCtx, cancel := context.WithCancelCause(ctx)
	tw := &TimeoutWriter{
		w:       w,
		flusher: flusher,
		ctx:     writerCtx,
		cancel:  cancel,
		config:  config,
		started: time.Now(),
	}
	if config.IdleTimeout > 0 {
		tw.idle = time.AfterFunc(config.IdleTimeout, func() {
			logging.Warn("Stream idle for %v, closing", config.IdleTimeout)
			cancel(ErrStreamCanceled)
		})
	}
	return tw, nil
}

// Write writes p and flushes it. A write that outlives WriteTimeout
// cancels the stream.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	if tw.ctx.Err() != nil {
		return 0, tw.contextError()
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := tw.w.Write(p)
		if err == nil {
			tw.flusher.Flush()
		}
		done <- result{n, err}
	}()

	timer := time.NewTimer(tw.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err == nil {
			if tw.idle != nil {
				tw.idle.Reset(tw.config.IdleTimeout)
			}
			tw.mu.Lock()
			tw.bytesWritten += int64(r.n)
			tw.mu.Unlock()
		}
		return r.n, r.err
	case <-timer.C:
		tw.cancel(ErrWriteTimeout)
		return 0, ErrWriteTimeout
	case <-tw.ctx.Done():
		return 0, tw.contextError()
	}
}

// Done is closed when the stream can no longer be written.
func (tw *TimeoutWriter) Done() <-chan struct{} {
	return tw.ctx.Done()
}

// contextError names why the stream ended. Anything that is not our own
// cancellation means the request context went away.
func (tw *TimeoutWriter) contextError() error {
	cause := context.Cause(tw.ctx)
	if errors.Is(cause, ErrStreamCanceled) || errors.Is(cause, ErrWriteTimeout) {
		return cause
	}
	return ErrClientGone
}

// Close ends the stream. Later writes fail with ErrStreamCanceled.
func (tw *TimeoutWriter) Close() error {
	if tw.idle != nil {
		tw.idle.Stop()
	}
	tw.cancel(ErrStreamCanceled)
	return nil
}

// Stats returns bytes written and time since the stream started.
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.started)
}
