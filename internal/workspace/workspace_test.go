package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"media-transcoder/internal/failure"
)

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()
	if config.Root == "" {
		config.Root = t.TempDir()
	}
	m, err := NewManager(config)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func countDirs(t *testing.T, root string) int {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			n++
		}
	}
	return n
}

func TestNewManagerRequiresRoot(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("NewManager() with empty root should fail")
	}
}

func TestAcquireRelease(t *testing.T) {
	m := newTestManager(t, Config{})

	ws, err := m.Acquire("req1-720p")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !strings.HasPrefix(filepath.Base(ws.Dir()), "job-req1-720p-") {
		t.Errorf("Dir() = %s, want job-req1-720p- prefix", ws.Dir())
	}
	if m.Active() != 1 {
		t.Errorf("Active() = %d, want 1", m.Active())
	}

	if err := os.WriteFile(ws.Path("out.mp4"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(ws.Path("nested/deeper"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Release: %v", err)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after release, want 0", m.Active())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newTestManager(t, Config{})
	ws, err := m.Acquire("job")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Release(); err != nil {
				t.Errorf("Release() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if m.Active() != 0 {
		t.Errorf("Active() = %d, want 0", m.Active())
	}
}

func TestAcquireUniqueDirectories(t *testing.T) {
	m := newTestManager(t, Config{})

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		ws, err := m.Acquire("same-id")
		if err != nil {
			t.Fatal(err)
		}
		if seen[ws.Dir()] {
			t.Fatalf("duplicate workspace %s", ws.Dir())
		}
		seen[ws.Dir()] = true
		defer ws.Release()
	}
}

func TestAcquireResourceExhausted(t *testing.T) {
	tests := []struct {
		name  string
		stat  disk.UsageStat
		inErr string
	}{
		{"disk", disk.UsageStat{Free: 100, InodesTotal: 1000, InodesFree: 1000}, "bytes free"},
		{"inodes", disk.UsageStat{Free: 1 << 40, InodesTotal: 1000, InodesFree: 3}, "inodes free"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			m := newTestManager(t, Config{Root: root, MinFreeBytes: 1 << 20, MinFreeInodes: 10})
			stat := tt.stat
			m.SetUsageFunc(func(string) (*disk.UsageStat, error) { return &stat, nil })

			_, err := m.Acquire("job")
			if !errors.Is(err, failure.ErrResourceExhausted) {
				t.Fatalf("Acquire() error = %v, want resource_exhausted", err)
			}
			if !strings.Contains(err.Error(), tt.inErr) {
				t.Errorf("error %q does not mention %q", err, tt.inErr)
			}
			if n := countDirs(t, root); n != 0 {
				t.Errorf("%d directories created, want 0", n)
			}
		})
	}
}

func TestAcquireIgnoresUsageErrors(t *testing.T) {
	m := newTestManager(t, Config{MinFreeBytes: 1})
	m.SetUsageFunc(func(string) (*disk.UsageStat, error) { return nil, errors.New("statfs failed") })

	ws, err := m.Acquire("job")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	_ = ws.Release()
}

func TestAcquireRealUsage(t *testing.T) {
	m := newTestManager(t, Config{MinFreeBytes: 1, MinFreeInodes: 1})
	ws, err := m.Acquire("job")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	_ = ws.Release()

	if _, _, err := m.FreeSpace(); err != nil {
		t.Errorf("FreeSpace() error = %v", err)
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, Config{Root: root})

	// Left behind by a crashed process.
	stale := filepath.Join(root, "job-crashed-123")
	if err := os.MkdirAll(filepath.Join(stale, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stale, "sub", "partial.mp4"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	// Not ours.
	foreign := filepath.Join(root, "keep-me")
	if err := os.Mkdir(foreign, 0o755); err != nil {
		t.Fatal(err)
	}

	live, err := m.Acquire("live")
	if err != nil {
		t.Fatal(err)
	}
	defer live.Release()

	removed, freed, err := m.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if freed != 5 {
		t.Errorf("freed = %d, want 5", freed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace not removed")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign directory removed")
	}
	if _, err := os.Stat(live.Dir()); err != nil {
		t.Error("live workspace removed")
	}
}

func TestSweepRespectsAge(t *testing.T) {
	root := t.TempDir()
	m := newTestManager(t, Config{Root: root})

	recent := filepath.Join(root, "job-recent")
	if err := os.Mkdir(recent, 0o755); err != nil {
		t.Fatal(err)
	}

	removed, _, err := m.Sweep(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	removed, _, _ = m.Sweep(0)
	if removed != 1 {
		t.Errorf("Sweep(0) removed = %d, want 1", removed)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc-123_X", "abc-123_X"},
		{"../etc/passwd", "___etc_passwd"},
		{"a b", "a_b"},
		{strings.Repeat("x", 100), strings.Repeat("x", 64)},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Errorf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
