// Package dispatch fans a query out to the backends of one or more logical
// indices and merges the hits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/gcbaptista/go-search-gateway/config"
	searchErrors "github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

const (
	defaultPoolSize = 16
	defaultTimeout  = 5 * time.Second
)

// AdapterProvider returns the adapter serving a configured backend.
type AdapterProvider interface {
	Adapter(def model.BackendDefinition) (services.BackendAdapter, error)
}

// Request is one dispatch: every variant against every index.
type Request struct {
	Indices  []string
	Variants []string
	// IndexVariants replaces Variants for the indices it lists.
	IndexVariants map[string][]string
	SiteID        int
	Type          string
	Language      string // overrides the per-index language when set
	Limit         int    // 0 means all
}

// variantsFor returns the query variants to send to index.
func (r Request) variantsFor(index string) []string {
	if v, ok := r.IndexVariants[index]; ok {
		return v
	}
	return r.Variants
}

// Result is the merged outcome of a dispatch.
type Result struct {
	Hits       []model.Hit
	Total      int
	Unresolved []string
	Failures   []services.BackendFailure
	Timings    []services.BackendTiming
}

// Partial reports whether any index or call contributed nothing because of an error.
func (r *Result) Partial() bool {
	return len(r.Unresolved) > 0 || len(r.Failures) > 0
}

// Dispatcher executes searches through a bounded worker pool.
type Dispatcher struct {
	snapshots *config.SnapshotHolder
	adapters  AdapterProvider
	pool      *ants.Pool
	timeout   time.Duration
	logger    *slog.Logger
}

type dispatcherConfig struct {
	poolSize int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*dispatcherConfig)

// WithPoolSize sets the number of concurrent backend calls.
func WithPoolSize(size int) Option {
	return func(c *dispatcherConfig) {
		if size > 0 {
			c.poolSize = size
		}
	}
}

// WithTimeout bounds every (index, variant) call.
func WithTimeout(d time.Duration) Option {
	return func(c *dispatcherConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *dispatcherConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a dispatcher. Call Release when done.
func New(snapshots *config.SnapshotHolder, adapters AdapterProvider, opts ...Option) (*Dispatcher, error) {
	cfg := dispatcherConfig{
		poolSize: defaultPoolSize,
		timeout:  defaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	pool, err := ants.NewPool(cfg.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch pool: %w", err)
	}

	return &Dispatcher{
		snapshots: snapshots,
		adapters:  adapters,
		pool:      pool,
		timeout:   cfg.timeout,
		logger:    cfg.logger,
	}, nil
}

// Release stops the worker pool.
func (d *Dispatcher) Release() {
	d.pool.Release()
}

// target is one resolved index.
type target struct {
	index    string
	backend  string
	language string
	adapter  services.BackendAdapter
}

// call is one (index, variant) search and its outcome.
type call struct {
	target  *target
	variant string
	result  *services.BackendResult
	err     error
	took    time.Duration
}

// EffectiveBackends resolves the backend handle of every index, "" for
// indices that do not resolve.
func (d *Dispatcher) EffectiveBackends(indices []string) []string {
	snap := d.snapshots.Load()
	out := make([]string, len(indices))
	for i, index := range indices {
		if def, err := snap.ResolveBackend(index); err == nil {
			out[i] = def.Handle
		}
	}
	return out
}

// Search runs every variant against every index. Indices that do not resolve
// to a backend and calls that fail are reported in the result. The error is
// ErrNoSearchCapability when nothing could be searched, or the caller's
// context error when it gave up.
func (d *Dispatcher) Search(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	snap := d.snapshots.Load()

	targets := make([]*target, 0, len(req.Indices))
	for _, index := range req.Indices {
		def, err := snap.ResolveBackend(index)
		if err == nil {
			var adapter services.BackendAdapter
			adapter, err = d.adapters.Adapter(def)
			if err == nil {
				language := req.Language
				if language == "" {
					language = snap.ResolveLanguage(index)
				}
				targets = append(targets, &target{index: index, backend: def.Handle, language: language, adapter: adapter})
				continue
			}
		}
		d.logger.Warn("index has no usable backend", "index", index, "error", err)
		res.Unresolved = append(res.Unresolved, index)
		res.Failures = append(res.Failures, services.BackendFailure{Index: index, Error: err.Error()})
	}
	if len(targets) == 0 {
		return res, searchErrors.ErrNoSearchCapability
	}

	calls := make([]*call, 0, len(targets)*len(req.Variants))
	for _, t := range targets {
		for _, variant := range req.variantsFor(t.index) {
			calls = append(calls, &call{target: t, variant: variant})
		}
	}

	var wg sync.WaitGroup
	for _, c := range calls {
		c := c
		wg.Add(1)
		err := d.pool.Submit(func() {
			defer wg.Done()
			d.execute(ctx, c, req)
		})
		if err != nil {
			wg.Done()
			c.err = fmt.Errorf("dispatch pool unavailable: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	succeeded := 0
	totals := make(map[string]int)
	merged := newMerger()
	for _, c := range calls {
		res.Timings = append(res.Timings, services.BackendTiming{
			Index:   c.target.index,
			Backend: c.target.backend,
			Variant: c.variant,
			TookMs:  float64(c.took.Nanoseconds()) / 1e6,
			Hits:    hitCount(c.result),
		})
		if c.err != nil {
			timedOut := errors.Is(c.err, context.DeadlineExceeded)
			d.logger.Warn("backend search failed",
				"index", c.target.index, "backend", c.target.backend, "variant", c.variant,
				"timed_out", timedOut, "error", c.err)
			res.Failures = append(res.Failures, services.BackendFailure{
				Index:    c.target.index,
				Backend:  c.target.backend,
				Variant:  c.variant,
				Error:    c.err.Error(),
				TimedOut: timedOut,
			})
			continue
		}
		succeeded++
		if c.result.Total > totals[c.target.index] {
			totals[c.target.index] = c.result.Total
		}
		for _, bh := range c.result.Hits {
			merged.add(model.Hit{
				ID:        bh.ID,
				SiteID:    bh.SiteID,
				Type:      bh.Document.GetType(),
				Score:     bh.Score,
				Index:     c.target.index,
				Backend:   c.target.backend,
				MatchedIn: []string{c.variant},
				Document:  bh.Document,
			})
		}
	}

	if succeeded == 0 {
		return res, searchErrors.ErrNoSearchCapability
	}

	// scores from different indices are compared as-is; ties keep merge order
	sort.SliceStable(merged.hits, func(i, j int) bool { return merged.hits[i].Score > merged.hits[j].Score })
	res.Hits = merged.hits
	for _, t := range totals {
		res.Total += t
	}
	return res, nil
}

// execute runs one call and bounds it by the dispatch timeout even when the
// adapter ignores its context.
func (d *Dispatcher) execute(ctx context.Context, c *call, req Request) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	opts := services.BackendSearchOptions{
		Limit:    req.Limit,
		SiteID:   req.SiteID,
		Type:     req.Type,
		Language: c.target.language,
	}

	type outcome struct {
		result *services.BackendResult
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		r, err := c.target.adapter.Search(callCtx, c.target.index, c.variant, opts)
		done <- outcome{r, err}
	}()

	select {
	case o := <-done:
		c.result, c.err = o.result, o.err
		if c.err == nil && c.result == nil {
			c.result = &services.BackendResult{}
		}
	case <-callCtx.Done():
		c.err = callCtx.Err()
	}
	c.took = time.Since(start)
}

func hitCount(r *services.BackendResult) int {
	if r == nil {
		return 0
	}
	return len(r.Hits)
}

// merger deduplicates hits by site-scoped element key. The first occurrence
// fixes the position, the highest score wins, and the variants are unioned.
type merger struct {
	hits  []model.Hit
	index map[string]int
}

func newMerger() *merger {
	return &merger{index: make(map[string]int)}
}

func (m *merger) add(h model.Hit) {
	key := h.Key()
	pos, ok := m.index[key]
	if !ok {
		m.index[key] = len(m.hits)
		m.hits = append(m.hits, h)
		return
	}

	existing := &m.hits[pos]
	variants := unionStrings(existing.MatchedIn, h.MatchedIn)
	if h.Score > existing.Score {
		*existing = h
	}
	existing.MatchedIn = variants
}

func unionStrings(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, s := range b {
		found := false
		for _, existing := range out {
			if existing == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}
