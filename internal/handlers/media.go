package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/thumbnail"

	"github.com/google/uuid"
)

// MetadataRequest is the body of POST /api/metadata.
type MetadataRequest struct {
	Input probe.InputHandle `json:"input"`
}

// ThumbnailRequest is the body of POST /api/thumbnail. Timestamp is either
// seconds as a number or a "HH:MM:SS(.mmm)" string; when absent the
// default offset is used.
type ThumbnailRequest struct {
	Input     probe.InputHandle `json:"input"`
	Timestamp json.RawMessage   `json:"timestamp,omitempty"`
}

// GetMetadata probes an input.
// POST /api/metadata
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	var req MetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	input, err := h.resolveInput(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	meta, err := h.prober.Extract(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, meta)
}

// GetThumbnail renders a JPEG preview of an input.
// POST /api/thumbnail
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	var req ThumbnailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	timestamp, err := parseTimestampField(req.Timestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	input, err := h.resolveInput(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}

	ws, err := h.workspaces.Acquire("thumbnail-" + uuid.NewString())
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		if err := ws.Release(); err != nil {
			logging.Warn("Failed to release thumbnail workspace %s: %v", ws.Dir(), err)
		}
	}()

	data, err := h.thumbnails.Generate(r.Context(), input, timestamp, ws)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(data); err != nil {
		logging.Debug("Failed to write thumbnail: %v", err)
	}
}

// parseTimestampField accepts a JSON number or string.
func parseTimestampField(raw json.RawMessage) (*time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, failure.New(failure.CodeValidation, "thumbnail", "timestamp must be a number or a string")
		}
		s = n.String()
	}
	return thumbnail.ParseTimestamp(s)
}

// ListPresets returns the quality tiers, highest first.
// GET /api/presets
func (h *Handlers) ListPresets(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "max-age=60")
	writeJSONStatus(w, http.StatusOK, h.presets.All())
}
