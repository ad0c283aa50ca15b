package probe

import (
	"errors"
	"strings"

	"media-transcoder/internal/failure"
	"media-transcoder/internal/filesystem"
)

// DefaultMaxInputBytes is the largest input the core accepts (500 MiB).
const DefaultMaxInputBytes int64 = 500 * 1024 * 1024

// InputHandle references an input file that the caller has already
// validated and stored. The core only reads it.
type InputHandle struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Validate rejects an empty path or a size outside [0, maxBytes]. A
// non-positive maxBytes disables the size check. Content is not inspected.
func (h InputHandle) Validate(maxBytes int64) error {
	if strings.TrimSpace(h.Path) == "" {
		return failure.New(failure.CodeValidation, "input", "input path is empty")
	}
	if h.SizeBytes < 0 {
		return failure.Errorf(failure.CodeValidation, "input", "negative input size %d", h.SizeBytes)
	}
	if maxBytes > 0 && h.SizeBytes > maxBytes {
		return failure.Errorf(failure.CodeValidation, "input",
			"input is %d bytes, maximum is %d", h.SizeBytes, maxBytes)
	}
	return nil
}

// Resolve checks that the file exists and is a regular file, filling in
// SizeBytes when the caller left it zero.
func (h InputHandle) Resolve() (InputHandle, error) {
	info, err := filesystem.Stat(h.Path)
	if err != nil {
		return h, failure.Wrap(failure.CodeValidation, "input", err)
	}
	if !info.Mode().IsRegular() {
		return h, failure.Wrap(failure.CodeValidation, "input", errors.New(h.Path+" is not a regular file"))
	}
	if h.SizeBytes == 0 {
		h.SizeBytes = info.Size()
	}
	return h, nil
}
