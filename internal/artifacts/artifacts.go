// Package artifacts hands finished renditions to longer-lived storage
// before their workspace is deleted.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"media-transcoder/internal/filesystem"
	"media-transcoder/internal/logging"
)

// Store takes ownership of an encoded file.
type Store interface {
	// Put moves src out of the workspace and returns its new location.
	Put(ctx context.Context, requestID, preset, src string) (string, error)
}

// LocalStore keeps outputs under a directory as <dir>/<request>/<preset><ext>.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("artifacts: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create %s: %w", abs, err)
	}
	return &LocalStore{dir: abs}, nil
}

// Dir returns the storage root.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put renames src into place, falling back to copy and delete when the
// store is on a different filesystem than the workspace.
func (s *LocalStore) Put(ctx context.Context, requestID, preset, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if requestID == "" || preset == "" || filepath.Base(requestID) != requestID || filepath.Base(preset) != preset {
		return "", fmt.Errorf("artifacts: invalid name %q/%q", requestID, preset)
	}

	dstDir := filepath.Join(s.dir, requestID)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create %s: %w", dstDir, err)
	}
	dst := filepath.Join(dstDir, preset+filepath.Ext(src))

	err := os.Rename(src, dst)
	if err == nil {
		return dst, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", fmt.Errorf("artifacts: move %s: %w", src, err)
	}

	logging.Debug("artifacts: %s is on another device, copying", dst)
	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	if err := os.Remove(src); err != nil {
		logging.Warn("artifacts: failed to remove %s after copy: %v", src, err)
	}
	return dst, nil
}

func copyFile(src, dst string) (err error) {
	in, err := filesystem.Open(src)
	if err != nil {
		return fmt.Errorf("artifacts: open %s: %w", src, err)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			logging.Warn("failed to close %s: %v", src, cerr)
		}
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("artifacts: create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("artifacts: close %s: %w", dst, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("artifacts: copy to %s: %w", dst, err)
	}
	return out.Sync()
}
