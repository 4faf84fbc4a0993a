package catalog

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
)

// Where a definition comes from.
const (
	SourceFile    = "file"
	SourceCatalog = "catalog"
)

// redactedSettings are backend settings never echoed back by the admin API.
var redactedSettings = []string{"dsn", "password", "api_key"}

const redactedValue = "***"

// ChangeKind tells what a catalog change touched.
type ChangeKind string

const (
	ChangeBackend  ChangeKind = "backend"
	ChangeIndex    ChangeKind = "index"
	ChangeDefaults ChangeKind = "defaults"
)

// Change describes one applied catalog mutation.
type Change struct {
	Kind   ChangeKind
	Handle string
}

// AdapterResetter drops a cached adapter whose definition changed.
type AdapterResetter interface {
	Reset(handle string)
}

// BackendView is a backend definition as listed by the admin API.
type BackendView struct {
	model.BackendDefinition
	Source    string `json:"source"`
	IsDefault bool   `json:"is_default"`
}

// IndexView is an index definition as listed by the admin API.
type IndexView struct {
	model.IndexDefinition
	Source           string `json:"source"`
	EffectiveBackend string `json:"effective_backend,omitempty"`
	EffectiveLang    string `json:"effective_language,omitempty"`
	BackendError     string `json:"backend_error,omitempty"`
}

// Manager validates catalog mutations against the merged view and publishes
// a new snapshot after every accepted change. Definitions from the settings
// file are read-only here.
type Manager struct {
	mutex    sync.Mutex
	store    *Store
	file     config.Layer
	holder   *config.SnapshotHolder
	resetter AdapterResetter
	logger   *slog.Logger

	hooksMu sync.RWMutex
	hooks   []func(Change)
}

// Option configures a Manager.
type Option func(*Manager)

// WithAdapterResetter resets registry adapters whose backend changed.
func WithAdapterResetter(r AdapterResetter) Option {
	return func(m *Manager) { m.resetter = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager publishes the initial merged snapshot.
func NewManager(file config.Layer, store *Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		file:   file,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.holder = config.NewSnapshotHolder(config.NewSnapshot(file, store.Layer()))
	return m
}

// Snapshots returns the holder the query pipeline reads from.
func (m *Manager) Snapshots() *config.SnapshotHolder {
	return m.holder
}

// OnChange registers fn to run after every applied change.
func (m *Manager) OnChange(fn func(Change)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Backends lists every backend of the merged view.
func (m *Manager) Backends() []BackendView {
	snap := m.holder.Load()
	out := make([]BackendView, 0)
	for _, b := range snap.Backends() {
		out = append(out, BackendView{
			BackendDefinition: redact(b),
			Source:            m.backendSource(b.Handle),
			IsDefault:         b.Handle == snap.DefaultBackend,
		})
	}
	return out
}

// GetBackend returns one backend of the merged view.
func (m *Manager) GetBackend(handle string) (*BackendView, error) {
	snap := m.holder.Load()
	b, ok := snap.Backend(handle)
	if !ok {
		return nil, errors.NewBackendNotFoundError(handle)
	}
	return &BackendView{
		BackendDefinition: redact(b),
		Source:            m.backendSource(handle),
		IsDefault:         handle == snap.DefaultBackend,
	}, nil
}

// Indices lists every index of the merged view with its resolved backend.
func (m *Manager) Indices() []IndexView {
	snap := m.holder.Load()
	out := make([]IndexView, 0)
	for _, h := range snap.IndexHandles() {
		view, _ := m.indexView(snap, h)
		out = append(out, *view)
	}
	return out
}

// GetIndex returns one index of the merged view.
func (m *Manager) GetIndex(handle string) (*IndexView, error) {
	return m.indexView(m.holder.Load(), handle)
}

// CreateBackend adds a backend to the catalog.
func (m *Manager) CreateBackend(def model.BackendDefinition) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := validateBackend(def); err != nil {
		return err
	}
	if _, exists := m.holder.Load().Backend(def.Handle); exists {
		return errors.NewAlreadyExistsError("backend", def.Handle)
	}
	if err := m.store.PutBackend(def); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeBackend, Handle: def.Handle})
	return nil
}

// UpdateBackend replaces a catalog backend. Disabling the effective default
// backend is refused.
func (m *Manager) UpdateBackend(def model.BackendDefinition) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.requireCatalogBackend(def.Handle); err != nil {
		return err
	}
	previous, _ := m.store.Backend(def.Handle)
	def = keepRedacted(def, previous)
	if err := validateBackend(def); err != nil {
		return err
	}
	if !def.IsEnabled() && def.Handle == m.holder.Load().DefaultBackend {
		return errors.NewDefaultBackendProtectedError(def.Handle)
	}
	if err := m.store.PutBackend(def); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeBackend, Handle: def.Handle})
	return nil
}

// DeleteBackend removes a catalog backend. The effective default and any
// backend an index overrides to cannot be deleted.
func (m *Manager) DeleteBackend(handle string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.requireCatalogBackend(handle); err != nil {
		return err
	}
	snap := m.holder.Load()
	if handle == snap.DefaultBackend {
		return errors.NewDefaultBackendProtectedError(handle)
	}
	var users []string
	for _, h := range snap.IndexHandles() {
		if idx, _ := snap.Index(h); idx.Backend == handle {
			users = append(users, h)
		}
	}
	if len(users) > 0 {
		return errors.NewValidationError("backend",
			fmt.Sprintf("backend '%s' is used by indices: %s", handle, strings.Join(users, ", ")))
	}
	if err := m.store.DeleteBackend(handle); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeBackend, Handle: handle})
	return nil
}

// CreateIndex adds an index to the catalog.
func (m *Manager) CreateIndex(def model.IndexDefinition) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	snap := m.holder.Load()
	if err := validateIndex(snap, def); err != nil {
		return err
	}
	if _, exists := snap.Index(def.Handle); exists {
		return errors.NewAlreadyExistsError("index", def.Handle)
	}
	if err := m.store.PutIndex(def); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeIndex, Handle: def.Handle})
	return nil
}

// UpdateIndex replaces a catalog index.
func (m *Manager) UpdateIndex(def model.IndexDefinition) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.requireCatalogIndex(def.Handle); err != nil {
		return err
	}
	if err := validateIndex(m.holder.Load(), def); err != nil {
		return err
	}
	if err := m.store.PutIndex(def); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeIndex, Handle: def.Handle})
	return nil
}

// DeleteIndex removes a catalog index.
func (m *Manager) DeleteIndex(handle string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.requireCatalogIndex(handle); err != nil {
		return err
	}
	if err := m.store.DeleteIndex(handle); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeIndex, Handle: handle})
	return nil
}

// SetDefaults sets the catalog default backend and language; an empty value
// keeps the current one. The backend must exist and be enabled. A default
// fixed by the settings file cannot be replaced here.
func (m *Manager) SetDefaults(backend, language string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if backend != "" {
		if m.file.DefaultBackend != "" && backend != m.file.DefaultBackend {
			return errors.NewValidationError("default_backend", "the default backend is fixed by the settings file")
		}
		b, ok := m.holder.Load().Backend(backend)
		if !ok {
			return errors.NewBackendNotFoundError(backend)
		}
		if !b.IsEnabled() {
			return errors.NewValidationError("default_backend", fmt.Sprintf("backend '%s' is disabled", backend))
		}
	}
	if language != "" && m.file.DefaultLanguage != "" && language != m.file.DefaultLanguage {
		return errors.NewValidationError("default_language", "the default language is fixed by the settings file")
	}
	current := m.store.Layer()
	if backend == "" {
		backend = current.DefaultBackend
	}
	if language == "" {
		language = current.DefaultLanguage
	}
	if err := m.store.SetDefaults(backend, language); err != nil {
		return err
	}
	m.publish(Change{Kind: ChangeDefaults})
	return nil
}

// publish rebuilds the snapshot and notifies listeners. Caller holds m.mutex.
func (m *Manager) publish(change Change) {
	m.holder.Store(config.NewSnapshot(m.file, m.store.Layer()))
	if change.Kind == ChangeBackend && m.resetter != nil {
		m.resetter.Reset(change.Handle)
	}
	m.logger.Info("Catalog changed", "kind", string(change.Kind), "handle", change.Handle)

	m.hooksMu.RLock()
	hooks := append([]func(Change){}, m.hooks...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(change)
	}
}

func (m *Manager) requireCatalogBackend(handle string) error {
	if m.backendSource(handle) == SourceFile {
		return errors.NewValidationError("handle", fmt.Sprintf("backend '%s' is defined in the settings file", handle))
	}
	if _, ok := m.store.Backend(handle); !ok {
		return errors.NewBackendNotFoundError(handle)
	}
	return nil
}

func (m *Manager) requireCatalogIndex(handle string) error {
	if m.indexSource(handle) == SourceFile {
		return errors.NewValidationError("handle", fmt.Sprintf("index '%s' is defined in the settings file", handle))
	}
	if _, ok := m.store.Index(handle); !ok {
		return errors.NewIndexNotFoundError(handle)
	}
	return nil
}

func (m *Manager) backendSource(handle string) string {
	for _, b := range m.file.Backends {
		if b.Handle == handle {
			return SourceFile
		}
	}
	return SourceCatalog
}

func (m *Manager) indexSource(handle string) string {
	for _, idx := range m.file.Indices {
		if idx.Handle == handle {
			return SourceFile
		}
	}
	return SourceCatalog
}

func (m *Manager) indexView(snap *config.Snapshot, handle string) (*IndexView, error) {
	idx, ok := snap.Index(handle)
	if !ok {
		return nil, errors.NewIndexNotFoundError(handle)
	}
	view := &IndexView{
		IndexDefinition: idx,
		Source:          m.indexSource(handle),
		EffectiveLang:   snap.ResolveLanguage(handle),
	}
	if b, err := snap.ResolveBackend(handle); err != nil {
		view.BackendError = err.Error()
	} else {
		view.EffectiveBackend = b.Handle
	}
	return view, nil
}

func validateBackend(def model.BackendDefinition) error {
	if !model.ValidHandle(def.Handle) {
		return errors.NewValidationError("handle", "handle may only contain letters, digits, '-' and '_'")
	}
	if !model.KnownBackendType(def.Type) {
		return errors.NewValidationError("type", fmt.Sprintf("unknown backend type '%s'", def.Type))
	}
	if def.Type == model.BackendPostgres && def.Setting("dsn", "") == "" {
		return errors.NewValidationError("settings.dsn", "postgres backends require a dsn")
	}
	return nil
}

func validateIndex(snap *config.Snapshot, def model.IndexDefinition) error {
	if !model.ValidHandle(def.Handle) {
		return errors.NewValidationError("handle", "handle may only contain letters, digits, '-' and '_'")
	}
	if def.Backend != "" {
		if _, ok := snap.Backend(def.Backend); !ok {
			return errors.NewValidationError("backend", fmt.Sprintf("backend '%s' is not configured", def.Backend))
		}
	}
	return nil
}

// keepRedacted restores secrets the caller echoed back masked.
func keepRedacted(def, previous model.BackendDefinition) model.BackendDefinition {
	if len(def.Settings) == 0 {
		return def
	}
	settings := make(map[string]string, len(def.Settings))
	for k, v := range def.Settings {
		if v == redactedValue {
			v = previous.Settings[k]
		}
		settings[k] = v
	}
	def.Settings = settings
	return def
}

func redact(b model.BackendDefinition) model.BackendDefinition {
	if len(b.Settings) == 0 {
		return b
	}
	settings := make(map[string]string, len(b.Settings))
	for k, v := range b.Settings {
		settings[k] = v
	}
	for _, key := range redactedSettings {
		if _, ok := settings[key]; ok {
			settings[key] = redactedValue
		}
	}
	b.Settings = settings
	return b
}
