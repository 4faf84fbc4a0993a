// Package cache wraps the search pipeline with a fingerprinted result cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gcbaptista/go-search-gateway/services"
)

const defaultCounterSize = 10000

// ComputeFunc produces a fresh response. cacheable=false keeps the response
// out of the store (for example when some backend failed).
type ComputeFunc func(ctx context.Context) (resp *services.SearchResponse, cacheable bool, err error)

// Cache stores encoded search responses under fingerprint-derived keys.
// Concurrent misses for the same key collapse into one computation.
//
// Each index carries a generation and the key embeds the generations of its
// indices, so a response computed before an invalidation can never be read
// after it, even if its write lands late.
type Cache struct {
	store            Store
	ttl              time.Duration
	popularOnly      bool
	popularThreshold int
	counter          *lru.Cache[string, int]
	group            singleflight.Group
	logger           *slog.Logger

	mu          sync.Mutex
	generations map[string]uint64
	global      uint64
}

type cacheConfig struct {
	ttl              time.Duration
	popularOnly      bool
	popularThreshold int
	counterSize      int
	logger           *slog.Logger
}

// Option configures a Cache.
type Option func(*cacheConfig)

// WithTTL sets the lifetime of stored entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// WithPopularOnly caches a query only once it was seen threshold times.
func WithPopularOnly(threshold int) Option {
	return func(c *cacheConfig) {
		c.popularOnly = true
		c.popularThreshold = threshold
	}
}

// WithCounterSize bounds the number of distinct queries counted.
func WithCounterSize(size int) Option {
	return func(c *cacheConfig) {
		if size > 0 {
			c.counterSize = size
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *cacheConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache over store.
func New(store Store, opts ...Option) (*Cache, error) {
	cfg := cacheConfig{
		ttl:         10 * time.Minute,
		counterSize: defaultCounterSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	counter, err := lru.New[string, int](cfg.counterSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create popularity counter: %w", err)
	}

	return &Cache{
		store:            store,
		ttl:              cfg.ttl,
		popularOnly:      cfg.popularOnly,
		popularThreshold: cfg.popularThreshold,
		counter:          counter,
		logger:           cfg.logger,
		generations:      make(map[string]uint64),
		// a persistent store may hold entries from a previous process whose
		// invalidations were never seen; start past them
		global: uint64(time.Now().UnixNano()),
	}, nil
}

type computed struct {
	data []byte
	hit  bool
}

// GetOrCompute returns the cached response for fp or computes, stores and
// returns a fresh one. The bool reports a cache hit. Every caller receives
// its own decoded copy.
func (c *Cache) GetOrCompute(ctx context.Context, fp Fingerprint, compute ComputeFunc) (*services.SearchResponse, bool, error) {
	if c.popularOnly && c.count(fp.Hash()) < c.popularThreshold {
		resp, _, err := compute(ctx)
		return resp, false, err
	}

	key := c.key(fp)
	if data, ok := c.get(key); ok {
		if resp, err := decode(data); err == nil {
			return resp, true, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if data, ok := c.get(key); ok {
			return computed{data: data, hit: true}, nil
		}
		resp, cacheable, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response: %w", err)
		}
		if cacheable {
			if err := c.store.Set(key, data, c.ttl); err != nil {
				c.logger.Warn("failed to store search result", "key", key, "error", err)
			}
		}
		return computed{data: data}, nil
	})
	if err != nil {
		// the shared computation ran on another caller's context
		if isContextError(err) && ctx.Err() == nil {
			resp, _, err := compute(ctx)
			return resp, false, err
		}
		return nil, false, err
	}

	result := v.(computed)
	resp, err := decode(result.data)
	if err != nil {
		return nil, false, err
	}
	return resp, result.hit, nil
}

// InvalidateIndex drops every entry holding results of index.
func (c *Cache) InvalidateIndex(index string) error {
	c.mu.Lock()
	c.generations[index]++
	c.mu.Unlock()

	c.logger.Debug("invalidating cached results", "index", index)
	return c.store.DeleteMatching(func(key string) bool {
		return keyMentions(key, index)
	})
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.mu.Lock()
	c.global++
	c.mu.Unlock()

	c.logger.Debug("invalidating all cached results")
	return c.store.Clear()
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) key(fp Fingerprint) string {
	c.mu.Lock()
	gens := make([]uint64, 0, len(fp.Indices)+1)
	gens = append(gens, c.global)
	for _, index := range fp.Indices {
		gens = append(gens, c.generations[index])
	}
	c.mu.Unlock()

	hash := hashOf(struct {
		Fingerprint Fingerprint `json:"fp"`
		Generations []uint64    `json:"gen"`
	}{fp, gens})
	return storageKey(fp.Indices, hash)
}

func (c *Cache) get(key string) ([]byte, bool) {
	data, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, ok
}

// count records one more request for a fingerprint and returns the total.
func (c *Cache) count(hash string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, _ := c.counter.Get(hash)
	n++
	c.counter.Add(hash, n)
	return n
}

func decode(data []byte) (*services.SearchResponse, error) {
	var resp services.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return &resp, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
