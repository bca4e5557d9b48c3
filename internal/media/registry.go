// Package media holds the library of playable sources.
package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/rcn8397/v4l2loopback-tricks/internal/probe"
)

// ErrSourceNotFound is returned by Lookup for unknown keys.
var ErrSourceNotFound = errors.New("source not found")

// Source is one playable file. Info is filled lazily by the first probe.
type Source struct {
	Path string      `json:"path" doc:"Absolute path of the media file"`
	Name string      `json:"name" doc:"Base name of the media file"`
	Info *probe.Info `json:"info,omitempty" doc:"Probe result, absent until probed"`
}

// ChangeFunc observes registry mutations. action is "added", "removed" or
// "cleared"; count is the size after the change.
type ChangeFunc func(action, path string, count int)

// Registry is the ordered, de-duplicated list of known sources. All methods
// are safe for concurrent use; callers receive copies, never live entries.
type Registry struct {
	mu       sync.RWMutex
	sources  []Source
	index    map[string]int
	onChange ChangeFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// OnChange registers the mutation observer. It runs outside the lock.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Add appends path unless it is already registered. Relative paths are made
// absolute. It reports whether the registry changed.
func (r *Registry) Add(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	r.mu.Lock()
	if _, exists := r.index[path]; exists {
		r.mu.Unlock()
		return false
	}
	r.index[path] = len(r.sources)
	r.sources = append(r.sources, Source{Path: path, Name: filepath.Base(path)})
	count, fn := len(r.sources), r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn("added", path, count)
	}
	return true
}

// Remove drops path. It reports whether it was registered.
func (r *Registry) Remove(path string) bool {
	r.mu.Lock()
	i, exists := r.index[path]
	if !exists {
		r.mu.Unlock()
		return false
	}
	r.sources = append(r.sources[:i], r.sources[i+1:]...)
	r.reindex()
	count, fn := len(r.sources), r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn("removed", path, count)
	}
	return true
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.sources = nil
	r.index = make(map[string]int)
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn("cleared", "", 0)
	}
}

// reindex rebuilds the path index. Caller holds the write lock.
func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.sources))
	for i, s := range r.sources {
		r.index[s.Path] = i
	}
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Snapshot returns a copy of all sources in insertion order.
func (r *Registry) Snapshot() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.sources, func(s Source, _ int) Source { return s.clone() })
}

// Paths returns the registered paths in insertion order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.sources, func(s Source, _ int) string { return s.Path })
}

// At returns the source at the zero-based position i.
func (r *Registry) At(i int) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.sources) {
		return Source{}, false
	}
	return r.sources[i].clone(), true
}

// Get returns the source registered under path.
func (r *Registry) Get(path string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[path]
	if !ok {
		return Source{}, false
	}
	return r.sources[i].clone(), true
}

// Lookup resolves a zero-based index, a full path or a base name, in that
// order. Base names resolve to the first match.
func (r *Registry) Lookup(key string) (Source, int, error) {
	key = strings.TrimSpace(key)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 || n >= len(r.sources) {
			return Source{}, -1, fmt.Errorf("%w: index %d out of range (have %d)", ErrSourceNotFound, n, len(r.sources))
		}
		return r.sources[n].clone(), n, nil
	}
	if i, ok := r.index[key]; ok {
		return r.sources[i].clone(), i, nil
	}
	if _, i, ok := lo.FindIndexOf(r.sources, func(s Source) bool { return s.Name == key }); ok {
		return r.sources[i].clone(), i, nil
	}
	return Source{}, -1, fmt.Errorf("%w: %q", ErrSourceNotFound, key)
}

// AttachInfo stores a probe result for path. Unknown paths are ignored.
func (r *Registry) AttachInfo(path string, info probe.Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[path]; ok {
		r.sources[i].Info = &info
	}
}

// Info returns the memoized probe result for path.
func (r *Registry) Info(path string) (probe.Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[path]
	if !ok || r.sources[i].Info == nil {
		return probe.Info{}, false
	}
	return *r.sources[i].Info, true
}

func (s Source) clone() Source {
	if s.Info != nil {
		info := *s.Info
		s.Info = &info
	}
	return s
}
