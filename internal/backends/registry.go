// Package backends builds and caches the adapters of configured backends.
package backends

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gcbaptista/go-search-gateway/internal/backends/bleve"
	"github.com/gcbaptista/go-search-gateway/internal/backends/native"
	"github.com/gcbaptista/go-search-gateway/internal/backends/postgres"
	"github.com/gcbaptista/go-search-gateway/internal/backends/sqlite"
	"github.com/gcbaptista/go-search-gateway/internal/typoutil"
	searchErrors "github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

const (
	connectTimeout = 10 * time.Second
	statusTimeout  = 5 * time.Second
	statusWorkers  = 8
)

// Env is what factories may use besides the definition itself.
type Env struct {
	DataDir string // empty keeps file-based engines in memory
	Logger  *slog.Logger
}

// Factory builds an adapter for one configured backend.
type Factory func(ctx context.Context, def model.BackendDefinition, env Env) (services.BackendAdapter, error)

type entry struct {
	def     model.BackendDefinition
	adapter services.BackendAdapter
}

// Registry lazily creates one adapter per backend handle and rebuilds it
// when the definition changes.
type Registry struct {
	env       Env
	factories map[string]Factory

	mu       sync.Mutex
	adapters map[string]*entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithFactory registers (or replaces) the factory of a backend type.
func WithFactory(backendType string, f Factory) Option {
	return func(r *Registry) { r.factories[backendType] = f }
}

// NewRegistry creates a registry with the built-in engine factories.
func NewRegistry(env Env, opts ...Option) *Registry {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	r := &Registry{
		env: env,
		factories: map[string]Factory{
			model.BackendNative:   newNative,
			model.BackendBleve:    newBleve,
			model.BackendSQLite:   newSQLite,
			model.BackendPostgres: newPostgres,
		},
		adapters: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Adapter returns the adapter of def, creating it on first use.
func (r *Registry) Adapter(def model.BackendDefinition) (services.BackendAdapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.adapters[def.Handle]; ok {
		if sameDefinition(e.def, def) {
			return e.adapter, nil
		}
		r.closeLocked(def.Handle)
	}

	factory, ok := r.factories[def.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported backend type %q", searchErrors.ErrInvalidInput, def.Type)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	adapter, err := factory(ctx, def, r.env)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend %s: %w", def.Handle, err)
	}
	r.env.Logger.Info("backend adapter created", "backend", def.Handle, "type", def.Type)
	r.adapters[def.Handle] = &entry{def: def, adapter: adapter}
	return adapter, nil
}

// Reset closes and forgets the adapter of a handle.
func (r *Registry) Reset(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(handle)
}

// Close closes every adapter.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for handle := range r.adapters {
		r.closeLocked(handle)
	}
	return nil
}

func (r *Registry) closeLocked(handle string) {
	e, ok := r.adapters[handle]
	if !ok {
		return
	}
	delete(r.adapters, handle)
	if closer, ok := e.adapter.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.env.Logger.Warn("failed to close backend adapter", "backend", handle, "error", err)
		}
	}
}

// StatusAll reports the status of every enabled backend, concurrently.
// Backends that cannot be created or queried are reported unavailable.
func (r *Registry) StatusAll(ctx context.Context, defs []model.BackendDefinition) []services.BackendStatus {
	out := make([]services.BackendStatus, len(defs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(statusWorkers)
	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			out[i] = r.status(ctx, def)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) status(ctx context.Context, def model.BackendDefinition) services.BackendStatus {
	unavailable := services.BackendStatus{Name: def.Handle, Type: def.Type}
	if !def.IsEnabled() {
		unavailable.Error = "backend is disabled"
		return unavailable
	}
	adapter, err := r.Adapter(def)
	if err != nil {
		unavailable.Error = err.Error()
		return unavailable
	}

	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	status, err := adapter.Status(ctx)
	if err != nil {
		unavailable.Error = err.Error()
		return unavailable
	}
	status.Name = def.Handle
	return *status
}

func sameDefinition(a, b model.BackendDefinition) bool {
	return a.Type == b.Type && a.IsEnabled() == b.IsEnabled() && maps.Equal(a.Settings, b.Settings)
}

// storagePath picks the explicit "path" setting, else a per-handle location
// under the data dir, else "" (in memory).
func storagePath(def model.BackendDefinition, env Env, engineDir, suffix string) string {
	if p := def.Setting("path", ""); p != "" {
		return p
	}
	if env.DataDir == "" {
		return ""
	}
	return filepath.Join(env.DataDir, engineDir, def.Handle+suffix)
}

func newNative(_ context.Context, def model.BackendDefinition, env Env) (services.BackendAdapter, error) {
	policy := typoutil.DefaultPolicy
	var err error
	if policy.MinWordSizeFor1Typo, err = intSetting(def, "min_word_size_for_1_typo", policy.MinWordSizeFor1Typo); err != nil {
		return nil, err
	}
	if policy.MinWordSizeFor2Typos, err = intSetting(def, "min_word_size_for_2_typos", policy.MinWordSizeFor2Typos); err != nil {
		return nil, err
	}
	if policy.Enabled() && policy.MinWordSizeFor2Typos < policy.MinWordSizeFor1Typo {
		policy.MinWordSizeFor2Typos = policy.MinWordSizeFor1Typo + 1
	}
	return native.New(def.Handle,
		native.WithDir(storagePath(def, env, "native", "")),
		native.WithTypoPolicy(policy),
		native.WithLogger(env.Logger))
}

// intSetting reads an integer backend setting; 0 or a negative value is kept
// as given so callers can use it to switch a feature off.
func intSetting(def model.BackendDefinition, key string, fallback int) (int, error) {
	raw := def.Setting(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, searchErrors.NewValidationError("settings."+key, "must be an integer")
	}
	return v, nil
}

func newBleve(_ context.Context, def model.BackendDefinition, env Env) (services.BackendAdapter, error) {
	return bleve.New(def.Handle,
		bleve.WithDir(storagePath(def, env, "bleve", "")),
		bleve.WithAnalyzer(def.Setting("analyzer", "")),
		bleve.WithLogger(env.Logger))
}

func newSQLite(_ context.Context, def model.BackendDefinition, env Env) (services.BackendAdapter, error) {
	return sqlite.Open(def.Handle, storagePath(def, env, "sqlite", ".db"), sqlite.WithLogger(env.Logger))
}

func newPostgres(ctx context.Context, def model.BackendDefinition, env Env) (services.BackendAdapter, error) {
	dsn := def.Setting("dsn", "")
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres backend %s requires a dsn setting", searchErrors.ErrInvalidInput, def.Handle)
	}
	return postgres.Open(ctx, def.Handle, dsn, def.Setting("schema", ""),
		postgres.WithDefaultConfig(def.Setting("text_search_config", "")),
		postgres.WithLogger(env.Logger))
}
