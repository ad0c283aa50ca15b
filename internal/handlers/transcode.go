package handlers

import (
	"net/http"

	"media-transcoder/internal/logging"
	"media-transcoder/internal/streaming"
	"media-transcoder/internal/transcode"

	"github.com/gorilla/mux"
)

// StartTranscode starts a transcode request and streams its events.
// POST /api/transcode
//
// Validation errors and admission rejections are returned as JSON before
// the stream opens. Once the stream is open, the request ID is in the
// X-Request-ID header and the last event is always complete or error.
// Closing the connection cancels the request.
func (h *Handlers) StartTranscode(w http.ResponseWriter, r *http.Request) {
	var req transcode.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	run, err := h.coordinator.Start(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Request-ID", run.ID)
	if err := streaming.Stream(r.Context(), w, run.Events(), h.stream); err != nil {
		if isClientGone(err) {
			logging.Debug("Client left transcode stream %s: %v", run.ID, err)
		} else {
			logging.Warn("Transcode stream %s failed: %v", run.ID, err)
		}
		run.Cancel()
		// Keep the publisher unblocked until the run winds down.
		go run.Wait()
	}
}

// CancelTranscode cancels a running request.
// DELETE /api/transcode/{id}
func (h *Handlers) CancelTranscode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.coordinator.Cancel(id) {
		writeJSONStatus(w, http.StatusNotFound, ErrorResponse{Error: "no active request " + id, Code: "not_found"})
		return
	}
	logging.Info("Transcode %s cancelled by client", id)
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "cancelling", "requestId": id})
}

// ListTranscodes lists requests that are still running.
// GET /api/transcode
func (h *Handlers) ListTranscodes(w http.ResponseWriter, _ *http.Request) {
	active := h.coordinator.Active()
	if active == nil {
		active = []transcode.Status{}
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, active)
}

// GetJobs returns the recorded outcomes of a request.
// GET /api/jobs/{requestId}
func (h *Handlers) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, ErrorResponse{Error: "job ledger is disabled", Code: "unavailable"})
		return
	}

	id := mux.Vars(r)["requestId"]
	records, err := h.ledger.JobsForRequest(r.Context(), id)
	if err != nil {
		logging.Error("Failed to query jobs for %s: %v", id, err)
		writeJSONStatus(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to query job ledger", Code: "internal"})
		return
	}
	if len(records) == 0 {
		writeJSONStatus(w, http.StatusNotFound, ErrorResponse{Error: "no jobs recorded for " + id, Code: "not_found"})
		return
	}
	writeJSONStatus(w, http.StatusOK, records)
}
