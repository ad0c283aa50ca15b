package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"media-transcoder/internal/admission"
	"media-transcoder/internal/failure"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/probe"
	"media-transcoder/internal/streaming"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// retryAfterSeconds is advertised on admission rejections.
const retryAfterSeconds = 5

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable"`
}

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, v)
}

// writeError maps err onto a status code and JSON body. Admission
// rejections carry Retry-After.
func writeError(w http.ResponseWriter, err error) {
	fe := failure.As(err)
	status := failure.HTTPStatus(fe)
	if fe.Code == failure.CodeResourceExhausted {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	if status >= http.StatusInternalServerError && fe.Code != failure.CodeResourceExhausted {
		logging.Error("Request failed: %v", err)
	}
	writeJSONStatus(w, status, ErrorResponse{
		Error:     fe.Detail(),
		Code:      string(fe.Code),
		Reason:    admission.ReasonOf(err),
		Retryable: failure.Retryable(fe),
	})
}

// decodeJSON reads a JSON body into v, rejecting unknown fields and
// trailing data.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return failure.Wrap(failure.CodeValidation, "decode", fmt.Errorf("invalid request body: %w", err))
	}
	if dec.More() {
		return failure.New(failure.CodeValidation, "decode", "invalid request body: trailing data")
	}
	return nil
}

// resolveInput validates an input handle before any work is done for it.
func (h *Handlers) resolveInput(in probe.InputHandle) (probe.InputHandle, error) {
	if err := in.Validate(h.maxInputBytes); err != nil {
		return in, err
	}
	resolved, err := in.Resolve()
	if err != nil {
		return in, err
	}
	if err := resolved.Validate(h.maxInputBytes); err != nil {
		return in, err
	}
	return resolved, nil
}

// isClientGone reports whether err is just the client hanging up.
func isClientGone(err error) bool {
	return errors.Is(err, streaming.ErrClientGone) || errors.Is(err, streaming.ErrStreamCanceled)
}
