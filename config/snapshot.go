package config

import (
	"sort"
	"sync/atomic"

	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
)

// Layer is one source of backend and index definitions.
type Layer struct {
	DefaultBackend  string
	DefaultLanguage string
	Backends        []model.BackendDefinition
	Indices         []model.IndexDefinition
}

// Snapshot is the resolved, read-only view of backends and indices. It is
// built once from the settings file and the catalog and replaced as a whole
// when either changes.
type Snapshot struct {
	DefaultBackend  string
	DefaultLanguage string
	backends        map[string]model.BackendDefinition
	indices         map[string]model.IndexDefinition
}

// NewSnapshot merges two layers. Entries from file replace database entries
// with the same handle, and a non-empty file default wins.
func NewSnapshot(file, database Layer) *Snapshot {
	s := &Snapshot{
		DefaultBackend:  database.DefaultBackend,
		DefaultLanguage: database.DefaultLanguage,
		backends:        make(map[string]model.BackendDefinition),
		indices:         make(map[string]model.IndexDefinition),
	}
	for _, layer := range []Layer{database, file} {
		for _, b := range layer.Backends {
			s.backends[b.Handle] = b
		}
		for _, idx := range layer.Indices {
			s.indices[idx.Handle] = idx
		}
	}
	if file.DefaultBackend != "" {
		s.DefaultBackend = file.DefaultBackend
	}
	if file.DefaultLanguage != "" {
		s.DefaultLanguage = file.DefaultLanguage
	}
	return s
}

// Index returns the definition of a logical index.
func (s *Snapshot) Index(handle string) (model.IndexDefinition, bool) {
	idx, ok := s.indices[handle]
	return idx, ok
}

// Backend returns the definition of a configured backend.
func (s *Snapshot) Backend(handle string) (model.BackendDefinition, bool) {
	b, ok := s.backends[handle]
	return b, ok
}

// IndexHandles returns every index handle, sorted.
func (s *Snapshot) IndexHandles() []string {
	handles := make([]string, 0, len(s.indices))
	for h := range s.indices {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}

// Backends returns every backend definition ordered by handle.
func (s *Snapshot) Backends() []model.BackendDefinition {
	out := make([]model.BackendDefinition, 0, len(s.backends))
	for _, b := range s.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// ResolveBackend returns the effective backend of an index: its override,
// else the default. A missing or disabled backend is a BackendNotResolvedError.
func (s *Snapshot) ResolveBackend(indexHandle string) (model.BackendDefinition, error) {
	idx, ok := s.indices[indexHandle]
	if !ok {
		return model.BackendDefinition{}, errors.NewIndexNotFoundError(indexHandle)
	}
	handle := idx.Backend
	if handle == "" {
		handle = s.DefaultBackend
	}
	if handle == "" {
		return model.BackendDefinition{}, errors.NewBackendNotResolvedError(indexHandle, "no override and no default backend configured")
	}
	b, ok := s.backends[handle]
	if !ok {
		return model.BackendDefinition{}, errors.NewBackendNotResolvedError(indexHandle, "backend '"+handle+"' is not configured")
	}
	if !b.IsEnabled() {
		return model.BackendDefinition{}, errors.NewBackendNotResolvedError(indexHandle, "backend '"+handle+"' is disabled")
	}
	return b, nil
}

// ResolveLanguage returns the index language, else the default language.
func (s *Snapshot) ResolveLanguage(indexHandle string) string {
	if idx, ok := s.indices[indexHandle]; ok && idx.Language != "" {
		return idx.Language
	}
	return s.DefaultLanguage
}

// SnapshotHolder publishes the current snapshot to concurrent readers.
type SnapshotHolder struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotHolder creates a holder with an initial snapshot.
func NewSnapshotHolder(initial *Snapshot) *SnapshotHolder {
	h := &SnapshotHolder{}
	if initial == nil {
		initial = NewSnapshot(Layer{}, Layer{})
	}
	h.current.Store(initial)
	return h
}

// Load returns the current snapshot.
func (h *SnapshotHolder) Load() *Snapshot {
	return h.current.Load()
}

// Store replaces the current snapshot.
func (h *SnapshotHolder) Store(s *Snapshot) {
	h.current.Store(s)
}
