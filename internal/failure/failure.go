// Package failure defines the error taxonomy shared by the transcoding core.
//
// Every error that crosses a component boundary is a *Error carrying a
// machine-readable Code plus human-readable diagnostic text. Callers branch
// on the code with [CodeOf] or errors.Is against the sentinels.
package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure.
type Code string

const (
	// CodeValidation marks a request rejected before any job was created.
	CodeValidation Code = "validation"
	// CodeResourceExhausted marks a job that was never started because a
	// workspace or admission slot was unavailable.
	CodeResourceExhausted Code = "resource_exhausted"
	// CodeEngineFailure marks a non-zero engine exit or missing output.
	CodeEngineFailure Code = "engine_failure"
	// CodeTimeout marks a job killed after exceeding its ceiling.
	CodeTimeout Code = "timeout"
	// CodeCancelled marks caller-initiated cancellation.
	CodeCancelled Code = "cancelled"
	// CodeExtractionFailed marks an input the prober could not decode.
	CodeExtractionFailed Code = "extraction_failed"
	// CodeGenerationFailed marks a thumbnail that could not be produced.
	CodeGenerationFailed Code = "generation_failed"
	// CodeInternal marks everything else.
	CodeInternal Code = "internal"
)

// Sentinels matched through errors.Is on a *Error of the same code.
var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrResourceExhausted = &Error{Code: CodeResourceExhausted}
	ErrEngineFailure     = &Error{Code: CodeEngineFailure}
	ErrTimeout           = &Error{Code: CodeTimeout}
	ErrCancelled         = &Error{Code: CodeCancelled}
	ErrExtractionFailed  = &Error{Code: CodeExtractionFailed}
	ErrGenerationFailed  = &Error{Code: CodeGenerationFailed}
)

// Error is a classified failure.
type Error struct {
	Code    Code
	Op      string // operation that failed, e.g. "workspace.acquire"
	JobID   string
	Preset  string
	Message string // diagnostic text, engine output is kept verbatim
	Err     error
}

// New builds an Error.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(code Code, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Errorf builds an Error with a formatted message.
func Errorf(code Code, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Op != "" && e.Preset != "":
		return fmt.Sprintf("%s [%s] (%s): %s", e.Op, e.Preset, e.Code, msg)
	case e.Op != "":
		return fmt.Sprintf("%s (%s): %s", e.Op, e.Code, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, which lets the package
// sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == "" && t.Err == nil
}

// WithJob records which job and preset the error belongs to.
func (e *Error) WithJob(jobID, preset string) *Error {
	e.JobID = jobID
	e.Preset = preset
	return e
}

// Detail returns the human-readable diagnostic without the code prefix.
func (e *Error) Detail() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Code)
	}
}

// As extracts a *Error from err. Context errors are classified as
// cancellation or timeout; any other error becomes CodeInternal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Wrap(CodeCancelled, "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, "", err)
	}
	return Wrap(CodeInternal, "", err)
}

// CodeOf returns the code of err, or "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return As(err).Code
}

// Retryable reports whether the same request could succeed later without
// changes.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeResourceExhausted, CodeTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a failure code onto the status the transport returns.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeExtractionFailed:
		return http.StatusBadRequest
	case CodeResourceExhausted:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCancelled:
		return 499
	case CodeEngineFailure, CodeGenerationFailed:
		return http.StatusUnprocessableEntity
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
