package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry tracks the named root directories of a deployment (temp root,
// store root, forwarder targets, ...) so their size can be reported.
//
// It plays no part in store correctness: nothing is read from or written to
// the roots except by the directory walk in Stats.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.Register("store", "/var/lib/seqstore/store")
//	reg.Register("temp", "/var/lib/seqstore/temp")
//
//	stats, _ := reg.Stats("store")
//	fmt.Println(stats.Files, stats.Bytes)
type Registry struct {
	mu    sync.RWMutex
	roots map[string]*Root
}

// Root is a registered directory.
type Root struct {
	Name         string
	Path         string
	RegisteredAt time.Time
}

// RootStats is a point-in-time size report for one root.
type RootStats struct {
	Name  string
	Path  string
	Files int64
	Dirs  int64
	Bytes int64

	// Units counts payload files (*.zip), i.e. committed or in-flight units.
	Units int64

	ScannedAt time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		roots: make(map[string]*Root),
	}
}

// Register adds a named root.
// Returns an error if the name is empty or already registered.
func (r *Registry) Register(name, path string) error {
	if name == "" {
		return fmt.Errorf("cannot register root with empty name")
	}
	if path == "" {
		return fmt.Errorf("cannot register root %q with empty path", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.roots[name]; exists {
		return fmt.Errorf("root %q already registered", name)
	}

	r.roots[name] = &Root{
		Name:         name,
		Path:         filepath.Clean(path),
		RegisteredAt: time.Now(),
	}
	return nil
}

// Unregister removes a named root. The directory itself is left untouched.
// Returns an error if the root doesn't exist.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.roots[name]; !exists {
		return fmt.Errorf("root %q not found", name)
	}
	delete(r.roots, name)
	return nil
}

// Get retrieves a root by name.
// Returns nil, error if the root doesn't exist.
func (r *Registry) Get(name string) (*Root, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root, exists := r.roots[name]
	if !exists {
		return nil, fmt.Errorf("root %q not found", name)
	}
	c := *root
	return &c, nil
}

// Names returns all registered root names, sorted.
// The returned slice is a copy and safe to modify.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roots))
	for name := range r.roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered roots.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roots)
}

// Stats walks the named root and reports its size.
//
// The root directory itself is not counted in Dirs. A root that does not
// exist yet reports zeros. Files and directories that vanish during the walk
// (units consumed concurrently) are skipped.
func (r *Registry) Stats(name string) (RootStats, error) {
	root, err := r.Get(name)
	if err != nil {
		return RootStats{}, err
	}
	return scan(root)
}

// Snapshot returns Stats for every registered root, sorted by name. Roots
// that cannot be scanned are skipped; the first failure is returned along
// with the partial result.
func (r *Registry) Snapshot() ([]RootStats, error) {
	var firstErr error
	out := make([]RootStats, 0, r.Count())
	for _, name := range r.Names() {
		stats, err := r.Stats(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, stats)
	}
	return out, firstErr
}

func scan(root *Root) (RootStats, error) {
	stats := RootStats{Name: root.Name, Path: root.Path, ScannedAt: time.Now()}

	err := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				if path == root.Path {
					return fs.SkipAll
				}
				return nil
			}
			return err
		}

		if d.IsDir() {
			if path != root.Path {
				stats.Dirs++
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		stats.Files++
		stats.Bytes += info.Size()
		if strings.HasSuffix(d.Name(), ".zip") {
			stats.Units++
		}
		return nil
	})
	if err != nil {
		return RootStats{}, fmt.Errorf("failed to scan root %q at %s: %w", root.Name, root.Path, err)
	}
	return stats, nil
}
