package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"media-transcoder/internal/events"
	"media-transcoder/internal/logging"
)

// WriteEvent writes one server-sent event. The event name is the event
// type and the data line is its JSON form.
func WriteEvent(tw *TimeoutWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(tw, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

// Stream writes every event from source to w as server-sent events until
// source closes. Heartbeat comments are sent while the source is quiet.
// On a write failure Stream returns without draining source; the caller
// is expected to cancel whatever feeds it.
func Stream(ctx context.Context, w http.ResponseWriter, source <-chan events.Event, config Config) error {
	tw, err := NewTimeoutWriter(ctx, w, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close stream writer: %v", err)
		}
	}()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var heartbeat <-chan time.Time
	if config.Heartbeat > 0 {
		ticker := time.NewTicker(config.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	count := 0
	for {
		select {
		case ev, ok := <-source:
			if !ok {
				bytesWritten, duration := tw.Stats()
				logging.Debug("Event stream completed: %d events, %d bytes in %v", count, bytesWritten, duration)
				return nil
			}
			if err := WriteEvent(tw, ev); err != nil {
				return err
			}
			count++

		case <-heartbeat:
			if _, err := fmt.Fprint(tw, ": ping\n\n"); err != nil {
				return err
			}

		case <-tw.Done():
			return tw.contextError()
		}
	}
}
