// Package native is the built-in backend: an in-process inverted index with
// prefix matching, typo tolerance and BM25 ranking, optionally persisted as
// gob files. Tokenization is language agnostic.
package native

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gcbaptista/go-search-gateway/internal/persistence"
	"github.com/gcbaptista/go-search-gateway/internal/typoutil"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// BackendType is the configured type served by this package.
const BackendType = model.BackendNative

// Adapter implements services.BackendAdapter over in-process shards.
type Adapter struct {
	name   string
	dir    string // empty keeps everything in memory
	logger *slog.Logger
	policy typoutil.Policy

	mu     sync.RWMutex
	shards map[string]*shard
}

var _ services.BackendAdapter = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter)

// WithDir persists each index to <dir>/<index>.gob.
func WithDir(dir string) Option {
	return func(a *Adapter) { a.dir = dir }
}

// WithTypoPolicy sets how many typos a query word may carry. A zero policy
// turns typo tolerance off.
func WithTypoPolicy(policy typoutil.Policy) Option {
	return func(a *Adapter) { a.policy = policy }
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates a native adapter and loads any persisted indices.
func New(name string, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		name:   name,
		logger: slog.Default(),
		policy: typoutil.DefaultPolicy,
		shards: make(map[string]*shard),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dir != "" {
		if err := a.load(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Adapter) load() error {
	files, err := filepath.Glob(filepath.Join(a.dir, "*.gob"))
	if err != nil {
		return fmt.Errorf("failed to list index files: %w", err)
	}
	for _, file := range files {
		var data shardData
		if err := persistence.LoadGob(file, &data); err != nil {
			return err
		}
		index := filepath.Base(file[:len(file)-len(".gob")])
		a.shards[index] = shardFromData(data, a.policy, a.newFinder())
		a.logger.Info("loaded native index", "backend", a.name, "index", index, "documents", len(data.Docs))
	}
	return nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) newFinder() *typoutil.Finder {
	return typoutil.NewFinder(typoutil.WithLogger(a.logger.With("backend", a.name)))
}

// shard returns the shard for index, creating it when create is set.
func (a *Adapter) shard(index string, create bool) *shard {
	a.mu.RLock()
	s, ok := a.shards[index]
	a.mu.RUnlock()
	if ok || !create {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok = a.shards[index]; !ok {
		s = newShard(a.policy, a.newFinder())
		a.shards[index] = s
	}
	return s
}

// persist saves a shard. Caller holds s.mu.
func (a *Adapter) persist(index string, s *shard) error {
	if a.dir == "" {
		return nil
	}
	return persistence.SaveGob(a.path(index), s.data())
}

func (a *Adapter) path(index string) string {
	return filepath.Join(a.dir, index+".gob")
}

func (a *Adapter) Index(ctx context.Context, index string, doc model.Document) error {
	return a.BatchIndex(ctx, index, []model.Document{doc})
}

func (a *Adapter) BatchIndex(ctx context.Context, index string, docs []model.Document) error {
	keys := make([]string, len(docs))
	for i, doc := range docs {
		key, ok := doc.Key()
		if !ok {
			return fmt.Errorf("document %d has no id", i)
		}
		keys[i] = key
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := a.shard(index, true)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		s.put(keys[i], doc)
	}
	return a.persist(index, s)
}

func (a *Adapter) Delete(_ context.Context, index string, key string) error {
	s := a.shard(index, false)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.keys[key]
	if !ok {
		return nil
	}
	s.remove(id)
	return a.persist(index, s)
}

func (a *Adapter) ClearIndex(_ context.Context, index string) error {
	a.mu.Lock()
	delete(a.shards, index)
	a.mu.Unlock()
	if a.dir == "" {
		return nil
	}
	return persistence.Remove(a.path(index))
}

func (a *Adapter) DocumentExists(_ context.Context, index string, key string) (bool, error) {
	s := a.shard(index, false)
	if s == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

// Search ignores opts.Language.
func (a *Adapter) Search(ctx context.Context, index string, query string, opts services.BackendSearchOptions) (*services.BackendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := a.shard(index, false)
	if s == nil {
		return &services.BackendResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := s.search(query, func(doc model.Document) bool {
		if opts.SiteID != 0 && doc.GetSiteID() != opts.SiteID {
			return false
		}
		return opts.Type == "" || doc.GetType() == opts.Type
	})

	result := &services.BackendResult{Total: len(ranked)}
	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	result.Hits = make([]services.BackendHit, 0, len(ranked))
	for _, r := range ranked {
		doc := s.docs[r.id]
		id, _ := doc.GetDocumentID()
		result.Hits = append(result.Hits, services.BackendHit{
			ID:       id,
			SiteID:   doc.GetSiteID(),
			Score:    r.score,
			Document: doc,
		})
	}
	return result, nil
}

func (a *Adapter) IsAvailable(_ context.Context) bool {
	if a.dir == "" {
		return true
	}
	info, err := os.Stat(a.dir)
	return err == nil && info.IsDir() || os.IsNotExist(err)
}

func (a *Adapter) Status(ctx context.Context) (*services.BackendStatus, error) {
	a.mu.RLock()
	names := make([]string, 0, len(a.shards))
	for name := range a.shards {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)

	counts := make(map[string]int, len(names))
	for _, name := range names {
		s := a.shard(name, false)
		if s == nil {
			continue
		}
		s.mu.RLock()
		counts[name] = len(s.docs)
		s.mu.RUnlock()
	}
	return &services.BackendStatus{
		Name:      a.name,
		Type:      BackendType,
		Available: a.IsAvailable(ctx),
		Indices:   counts,
	}, nil
}
