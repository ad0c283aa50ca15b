package filesystem

import (
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
)

const unknownVolume = "unknown"

// Volume names a directory tree for metric labels.
type Volume struct {
	Name string
	Path string
}

// Volumes labels paths with the name of the deepest configured root that
// contains them.
type Volumes struct {
	roots []Volume
}

// NewVolumes cleans each root to an absolute path. Entries with an empty
// name or path are ignored.
//
//	filesystem.NewVolumes(
//		filesystem.Volume{Name: "work", Path: cfg.WorkDir},
//		filesystem.Volume{Name: "output", Path: cfg.OutputDir},
//	)
func NewVolumes(vols ...Volume) *Volumes {
	roots := make([]Volume, 0, len(vols))
	for _, v := range vols {
		if v.Name == "" || v.Path == "" {
			continue
		}
		p, err := filepath.Abs(v.Path)
		if err != nil {
			p = filepath.Clean(v.Path)
		}
		roots = append(roots, Volume{Name: v.Name, Path: p})
	}
	slices.SortFunc(roots, func(a, b Volume) int {
		return len(b.Path) - len(a.Path)
	})
	return &Volumes{roots: roots}
}

// Label returns the volume name for path, or "unknown".
func (v *Volumes) Label(path string) string {
	if v == nil {
		return unknownVolume
	}
	p, err := filepath.Abs(path)
	if err != nil {
		return unknownVolume
	}
	for _, root := range v.roots {
		rel, err := filepath.Rel(root.Path, p)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return root.Name
		}
	}
	return unknownVolume
}

var defaultVolumes atomic.Pointer[Volumes]

// SetVolumes installs the package-level labels used when a Policy has none.
func SetVolumes(v *Volumes) {
	defaultVolumes.Store(v)
}
