/*
Package streaming writes progress streams to HTTP clients as server-sent
events.

Each event is written as

	event: progress
	data: {"type":"progress","requestId":"...","preset":"720p","percent":42.5}

and flushed immediately. While the source is quiet, for example between two
presets, a comment line (": ping") is sent every Heartbeat interval so
proxies keep the connection open.

Writes go through a TimeoutWriter, which bounds every write and ends the
stream when nothing has been written for IdleTimeout. A client that stops
reading therefore cannot hold a handler goroutine forever:

	err := streaming.Stream(r.Context(), w, run.Events(), streaming.DefaultConfig())
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("progress stream ended early: %v", err)
	}

Stream does not drain the source after a write error. Callers cancel the
producer (the request context does this for transcode runs) so it can stop.
*/
package streaming
