package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"media-transcoder/internal/failure"
	"media-transcoder/internal/filesystem"
	"media-transcoder/internal/logging"
	"media-transcoder/internal/metrics"
)

// dirPrefix marks directories owned by the manager so Sweep never touches
// anything else under the root.
const dirPrefix = "job-"

// Config configures a Manager.
type Config struct {
	Root          string
	MinFreeBytes  uint64
	MinFreeInodes uint64
}

// UsageFunc reports filesystem usage for a path.
type UsageFunc func(path string) (*disk.UsageStat, error)

// Manager allocates one scratch directory per encode job.
type Manager struct {
	root          string
	minFreeBytes  uint64
	minFreeInodes uint64
	usage         UsageFunc

	mu     sync.Mutex
	active map[string]*Workspace
}

// NewManager creates the root directory if needed.
func NewManager(config Config) (*Manager, error) {
	if config.Root == "" {
		return nil, errors.New("workspace: root directory not set")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root %s: %w", root, err)
	}

	return &Manager{
		root:          root,
		minFreeBytes:  config.MinFreeBytes,
		minFreeInodes: config.MinFreeInodes,
		usage:         disk.Usage,
		active:        make(map[string]*Workspace),
	}, nil
}

// SetUsageFunc replaces the disk usage probe. Used by tests to simulate a
// full volume.
func (m *Manager) SetUsageFunc(fn UsageFunc) {
	m.usage = fn
}

// Root returns the absolute work root.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a uniquely named directory for jobID. It fails with a
// resource_exhausted error when the volume is below its free space or
// inode floor.
func (m *Manager) Acquire(jobID string) (*Workspace, error) {
	if err := m.checkCapacity(); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(m.root, dirPrefix+sanitize(jobID)+"-")
	if err != nil {
		metrics.WorkspaceAcquireFailures.WithLabelValues("mkdir").Inc()
		return nil, failure.Wrap(failure.CodeResourceExhausted, "workspace.acquire", err)
	}

	ws := &Workspace{dir: dir, jobID: jobID, manager: m}

	m.mu.Lock()
	m.active[dir] = ws
	m.mu.Unlock()
	metrics.WorkspacesActive.Inc()

	logging.Debug("Workspace acquired for job %s: %s", jobID, dir)
	return ws, nil
}

func (m *Manager) checkCapacity() error {
	if m.minFreeBytes == 0 && m.minFreeInodes == 0 {
		return nil
	}

	stat, err := m.usage(m.root)
	if err != nil {
		// Unknown usage is not treated as exhaustion.
		logging.Warn("Workspace usage check failed for %s: %v", m.root, err)
		return nil
	}

	if m.minFreeBytes > 0 && stat.Free < m.minFreeBytes {
		metrics.WorkspaceAcquireFailures.WithLabelValues("disk").Inc()
		return failure.Errorf(failure.CodeResourceExhausted, "workspace.acquire",
			"%d bytes free on %s, need %d", stat.Free, m.root, m.minFreeBytes)
	}
	if m.minFreeInodes > 0 && stat.InodesTotal > 0 && stat.InodesFree < m.minFreeInodes {
		metrics.WorkspaceAcquireFailures.WithLabelValues("inodes").Inc()
		return failure.Errorf(failure.CodeResourceExhausted, "workspace.acquire",
			"%d inodes free on %s, need %d", stat.InodesFree, m.root, m.minFreeInodes)
	}
	return nil
}

// FreeSpace reports free bytes and inodes on the work volume.
func (m *Manager) FreeSpace() (bytes, inodes uint64, err error) {
	stat, err := m.usage(m.root)
	if err != nil {
		return 0, 0, err
	}
	return stat.Free, stat.InodesFree, nil
}

// Active returns the number of workspaces acquired and not yet released.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep removes job directories under the root that no live Workspace owns
// and that were last modified more than olderThan ago. It is run at startup
// to reclaim directories left behind by a crashed process, and returns the
// number of directories removed and the bytes freed.
func (m *Manager) Sweep(olderThan time.Duration) (int, int64, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("failed to read workspace root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	var removed int
	var freedBytes int64

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		path := filepath.Join(m.root, entry.Name())

		m.mu.Lock()
		_, live := m.active[path]
		m.mu.Unlock()
		if live {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}
		if olderThan > 0 && info.ModTime().After(cutoff) {
			continue
		}

		size, _ := dirSize(path)
		if err := filesystem.RemoveAll(path); err != nil {
			logging.Warn("failed to remove stale workspace %s: %v", path, err)
			metrics.WorkspaceCleanupErrors.Inc()
			continue
		}
		removed++
		freedBytes += size
	}

	if removed > 0 {
		logging.Info("Swept %d stale workspaces: freed %d bytes", removed, freedBytes)
	}
	return removed, freedBytes, nil
}

func (m *Manager) forget(dir string) {
	m.mu.Lock()
	delete(m.active, dir)
	m.mu.Unlock()
	metrics.WorkspacesActive.Dec()
}

// Workspace is one job's scratch directory.
type Workspace struct {
	dir     string
	jobID   string
	manager *Manager

	once sync.Once
	err  error
}

// Dir returns the absolute directory path.
func (w *Workspace) Dir() string {
	return w.dir
}

// JobID returns the job the workspace was acquired for.
func (w *Workspace) JobID() string {
	return w.jobID
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Release deletes the directory and everything in it. Only the first call
// does any work; later calls return the first call's result.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		if err := filesystem.RemoveAll(w.dir); err != nil {
			metrics.WorkspaceCleanupErrors.Inc()
			w.err = fmt.Errorf("workspace: remove %s: %w", w.dir, err)
		}
		w.manager.forget(w.dir)
		logging.Debug("Workspace released for job %s", w.jobID)
	})
	return w.err
}

// sanitize keeps job ids safe for use in a directory name.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
