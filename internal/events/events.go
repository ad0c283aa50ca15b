// Package events defines the progress stream handed to transports and the
// publisher that guarantees it ends with exactly one terminal event.
package events

import (
	"context"
	"fmt"
	"runtime/debug"

	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
)

// Type is the kind of event.
type Type string

const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Event is one item of a progress stream. Optional fields are omitted from
// the wire form when unset.
type Event struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId"`
	Preset    string `json:"preset,omitempty"`
	// State is set on progress events that mark a job state change.
	State    string   `json:"state,omitempty"`
	Percent  *float64 `json:"percent,omitempty"`
	Elapsed  *float64 `json:"elapsed,omitempty"` // seconds of media encoded
	FPS      *float64 `json:"fps,omitempty"`
	Bitrate  string   `json:"bitrate,omitempty"`
	Filename string   `json:"filename,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	Code         string `json:"code,omitempty"`
	Result       any    `json:"result,omitempty"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Complete builds the successful terminal event.
func Complete(requestID string, result any) Event {
	return Event{Type: TypeComplete, RequestID: requestID, Result: result}
}

// Failed builds an error terminal event from err.
func Failed(requestID string, err error) Event {
	fe := failure.As(err)
	if fe == nil {
		fe = failure.New(failure.CodeInternal, "", "unknown error")
	}
	return Event{
		Type:         TypeError,
		RequestID:    requestID,
		Preset:       fe.Preset,
		ErrorMessage: fe.Detail(),
		Code:         string(fe.Code),
	}
}

// Publish re-emits source in order and guarantees the returned channel
// carries exactly one terminal event before it is closed:
//
//   - events after the first terminal are dropped
//   - if source closes without a terminal, a synthetic error is emitted
//
// If ctx ends, delivery stops but source is still drained so the producer
// never blocks.
func Publish(ctx context.Context, requestID string, source <-chan Event) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer drain(source)

		terminated := false
		defer func() {
			if !terminated {
				ev := Failed(requestID, failure.New(failure.CodeInternal, "publish",
					"event stream ended without a result"))
				if deliver(ctx, out, ev) {
					metrics.ProgressEventsTotal.WithLabelValues(string(ev.Type)).Inc()
				}
			}
			close(out)
		}()

		for ev := range source {
			if ev.RequestID == "" {
				ev.RequestID = requestID
			}
			if !deliver(ctx, out, ev) {
				return
			}
			metrics.ProgressEventsTotal.WithLabelValues(string(ev.Type)).Inc()
			if ev.Terminal() {
				terminated = true
				return
			}
		}
	}()

	return out
}

func deliver(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func drain(source <-chan Event) {
	dropped := 0
	for range source {
		dropped++
	}
	if dropped > 0 {
		logging.Debug("events: dropped %d events after the stream ended", dropped)
	}
}

// Guard converts a panic in a producing goroutine into a terminal error
// event on out. It must be deferred directly, after the deferred close of
// out:
//
//	defer close(ch)
//	defer events.Guard(requestID, ch)
func Guard(requestID string, out chan<- Event) {
	r := recover()
	if r == nil {
		return
	}
	logging.Error("Request %s panicked: %v\n%s", requestID, r, debug.Stack())
	out <- Failed(requestID, failure.New(failure.CodeInternal, "transcode", fmt.Sprintf("internal error: %v", r)))
}
