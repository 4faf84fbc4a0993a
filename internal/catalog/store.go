// Package catalog holds the backends and logical indices managed through the
// admin API. It is the database layer of config.Snapshot; entries from the
// settings file take precedence over it.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
)

// fileData is the on-disk shape of catalog.json
type fileData struct {
	DefaultBackend  string                    `json:"default_backend,omitempty"`
	DefaultLanguage string                    `json:"default_language,omitempty"`
	Backends        []model.BackendDefinition `json:"backends"`
	Indices         []model.IndexDefinition   `json:"indices"`
}

// Store keeps catalog entries in memory and, when a data file is set,
// mirrors every change to it. It does no cross-entry validation; that is
// the Manager's job.
type Store struct {
	mutex           sync.RWMutex
	backends        map[string]model.BackendDefinition
	indices         map[string]model.IndexDefinition
	defaultBackend  string
	defaultLanguage string
	dataFilePath    string // empty keeps the store in memory only
}

// NewMemoryStore creates an in-memory catalog
func NewMemoryStore() *Store {
	return &Store{
		backends: make(map[string]model.BackendDefinition),
		indices:  make(map[string]model.IndexDefinition),
	}
}

// NewFileStore creates a catalog persisted to <dataDir>/catalog.json
func NewFileStore(dataDir string) (*Store, error) {
	s := NewMemoryStore()
	s.dataFilePath = filepath.Join(dataDir, "catalog.json")
	if err := s.loadData(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load catalog data: %w", err)
	}
	return s, nil
}

// Layer returns the catalog as a snapshot layer, entries ordered by handle.
func (s *Store) Layer() config.Layer {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	data := s.dataLocked()
	return config.Layer{
		DefaultBackend:  data.DefaultBackend,
		DefaultLanguage: data.DefaultLanguage,
		Backends:        data.Backends,
		Indices:         data.Indices,
	}
}

// Backend returns a catalog backend.
func (s *Store) Backend(handle string) (model.BackendDefinition, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	b, ok := s.backends[handle]
	return b, ok
}

// Index returns a catalog index.
func (s *Store) Index(handle string) (model.IndexDefinition, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	idx, ok := s.indices[handle]
	return idx, ok
}

// PutBackend inserts or replaces a backend.
func (s *Store) PutBackend(def model.BackendDefinition) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, existed := s.backends[def.Handle]
	s.backends[def.Handle] = def
	if err := s.saveData(); err != nil {
		if existed {
			s.backends[def.Handle] = previous
		} else {
			delete(s.backends, def.Handle)
		}
		return fmt.Errorf("failed to persist backend: %w", err)
	}
	return nil
}

// DeleteBackend removes a backend.
func (s *Store) DeleteBackend(handle string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, exists := s.backends[handle]
	if !exists {
		return errors.NewBackendNotFoundError(handle)
	}
	delete(s.backends, handle)
	if err := s.saveData(); err != nil {
		s.backends[handle] = previous
		return fmt.Errorf("failed to persist backend deletion: %w", err)
	}
	return nil
}

// PutIndex inserts or replaces an index.
func (s *Store) PutIndex(def model.IndexDefinition) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, existed := s.indices[def.Handle]
	s.indices[def.Handle] = def
	if err := s.saveData(); err != nil {
		if existed {
			s.indices[def.Handle] = previous
		} else {
			delete(s.indices, def.Handle)
		}
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}

// DeleteIndex removes an index.
func (s *Store) DeleteIndex(handle string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	previous, exists := s.indices[handle]
	if !exists {
		return errors.NewIndexNotFoundError(handle)
	}
	delete(s.indices, handle)
	if err := s.saveData(); err != nil {
		s.indices[handle] = previous
		return fmt.Errorf("failed to persist index deletion: %w", err)
	}
	return nil
}

// SetDefaults replaces the catalog default backend and language.
func (s *Store) SetDefaults(backend, language string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	prevBackend, prevLanguage := s.defaultBackend, s.defaultLanguage
	s.defaultBackend, s.defaultLanguage = backend, language
	if err := s.saveData(); err != nil {
		s.defaultBackend, s.defaultLanguage = prevBackend, prevLanguage
		return fmt.Errorf("failed to persist catalog defaults: %w", err)
	}
	return nil
}

func (s *Store) dataLocked() fileData {
	data := fileData{
		DefaultBackend:  s.defaultBackend,
		DefaultLanguage: s.defaultLanguage,
		Backends:        make([]model.BackendDefinition, 0, len(s.backends)),
		Indices:         make([]model.IndexDefinition, 0, len(s.indices)),
	}
	for _, b := range s.backends {
		data.Backends = append(data.Backends, b)
	}
	for _, idx := range s.indices {
		data.Indices = append(data.Indices, idx)
	}
	sort.Slice(data.Backends, func(i, j int) bool { return data.Backends[i].Handle < data.Backends[j].Handle })
	sort.Slice(data.Indices, func(i, j int) bool { return data.Indices[i].Handle < data.Indices[j].Handle })
	return data
}

func (s *Store) loadData() error {
	raw, err := os.ReadFile(s.dataFilePath)
	if err != nil {
		return err
	}
	var data fileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse catalog data: %w", err)
	}
	s.defaultBackend = data.DefaultBackend
	s.defaultLanguage = data.DefaultLanguage
	for _, b := range data.Backends {
		s.backends[b.Handle] = b
	}
	for _, idx := range data.Indices {
		s.indices[idx.Handle] = idx
	}
	return nil
}

// saveData writes the catalog to the data file; a no-op for memory stores
func (s *Store) saveData() error {
	if s.dataFilePath == "" {
		return nil
	}

	raw, err := json.MarshalIndent(s.dataLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.dataFilePath), 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	tmp := s.dataFilePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("failed to write catalog data: %w", err)
	}
	return os.Rename(tmp, s.dataFilePath)
}
