package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-search-gateway/internal/logging"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

func fingerprint(indices ...string) Fingerprint {
	backends := make([]string, len(indices))
	languages := make([]string, len(indices))
	for i := range indices {
		backends[i] = "native"
		languages[i] = "en"
	}
	return NewFingerprint(indices, backends, languages, "shoes", 1, 10, "")
}

func counting(calls *int32, resp *services.SearchResponse) ComputeFunc {
	return func(ctx context.Context) (*services.SearchResponse, bool, error) {
		atomic.AddInt32(calls, 1)
		return resp, true, nil
	}
}

func sampleResponse() *services.SearchResponse {
	return &services.SearchResponse{
		Hits: []model.Hit{
			{ID: "1", SiteID: 1, Score: 2.5, Index: "products", Backend: "native", Document: model.Document{"id": "1", "title": "Red shoes"}},
			{ID: "2", SiteID: 1, Score: 1.5, Index: "products", Backend: "native", Promoted: true},
		},
		Total: 2,
		Meta:  &services.Meta{MatchedRules: []string{"r1"}},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := OpenBadgerStore("", logging.Discard())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(128, time.Minute),
		"badger": badgerStore,
	}
}

func TestFingerprint_StableAcrossIndexOrder(t *testing.T) {
	a := NewFingerprint([]string{"b", "a"}, []string{"pg", "native"}, []string{"de", "en"}, "q", 1, 10, "")
	b := NewFingerprint([]string{"a", "b"}, []string{"native", "pg"}, []string{"en", "de"}, "q", 1, 10, "")

	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, []string{"a", "b"}, a.Indices)
	assert.Equal(t, []string{"native", "pg"}, a.Backends)
}

func TestFingerprint_OutputShapingInputsChangeHash(t *testing.T) {
	base := NewFingerprint([]string{"a"}, []string{"native"}, []string{"en"}, "q", 1, 10, "")

	variants := map[string]Fingerprint{
		"query":    NewFingerprint([]string{"a"}, []string{"native"}, []string{"en"}, "q2", 1, 10, ""),
		"backend":  NewFingerprint([]string{"a"}, []string{"bleve"}, []string{"en"}, "q", 1, 10, ""),
		"language": NewFingerprint([]string{"a"}, []string{"native"}, []string{"de"}, "q", 1, 10, ""),
		"site":     NewFingerprint([]string{"a"}, []string{"native"}, []string{"en"}, "q", 2, 10, ""),
		"limit":    NewFingerprint([]string{"a"}, []string{"native"}, []string{"en"}, "q", 1, 0, ""),
		"type":     NewFingerprint([]string{"a"}, []string{"native"}, []string{"en"}, "q", 1, 10, "product"),
		"indices":  NewFingerprint([]string{"a", "b"}, []string{"native", "native"}, []string{"en", "en"}, "q", 1, 10, ""),
	}
	for name, fp := range variants {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base.Hash(), fp.Hash())
		})
	}
}

func TestKeyMentions(t *testing.T) {
	key := storageKey([]string{"blog", "products"}, "abc")

	assert.True(t, keyMentions(key, "blog"))
	assert.True(t, keyMentions(key, "products"))
	assert.False(t, keyMentions(key, "prod"))
	assert.False(t, keyMentions("other:blog:abc", "blog"))
}

func TestCache_HitAfterMiss(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c, err := New(store, WithLogger(logging.Discard()))
			require.NoError(t, err)
			defer c.Close()

			var calls int32
			compute := counting(&calls, sampleResponse())

			first, hit, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
			require.NoError(t, err)
			assert.False(t, hit)

			second, hit, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
			require.NoError(t, err)
			assert.True(t, hit)

			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
			assert.Equal(t, first.Hits, second.Hits)
			assert.Equal(t, first.Total, second.Total)
		})
	}
}

func TestCache_CallersGetIndependentCopies(t *testing.T) {
	c, err := New(NewMemoryStore(16, time.Minute))
	require.NoError(t, err)

	var calls int32
	compute := counting(&calls, sampleResponse())

	first, _, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
	require.NoError(t, err)
	first.Hits[0].Score = 99

	second, _, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
	require.NoError(t, err)
	assert.Equal(t, 2.5, second.Hits[0].Score)
}

func TestCache_InvalidateIndex(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c, err := New(store, WithLogger(logging.Discard()))
			require.NoError(t, err)
			defer c.Close()

			var calls int32
			compute := counting(&calls, sampleResponse())
			ctx := context.Background()

			_, _, err = c.GetOrCompute(ctx, fingerprint("products"), compute)
			require.NoError(t, err)
			_, _, err = c.GetOrCompute(ctx, fingerprint("blog"), compute)
			require.NoError(t, err)
			_, _, err = c.GetOrCompute(ctx, fingerprint("blog", "products"), compute)
			require.NoError(t, err)
			require.Equal(t, int32(3), atomic.LoadInt32(&calls))

			require.NoError(t, c.InvalidateIndex("products"))

			_, hit, err := c.GetOrCompute(ctx, fingerprint("products"), compute)
			require.NoError(t, err)
			assert.False(t, hit)

			_, hit, err = c.GetOrCompute(ctx, fingerprint("blog", "products"), compute)
			require.NoError(t, err)
			assert.False(t, hit, "multi-index entries holding the index are dropped too")

			_, hit, err = c.GetOrCompute(ctx, fingerprint("blog"), compute)
			require.NoError(t, err)
			assert.True(t, hit, "other indices keep their entries")
		})
	}
}

func TestCache_InvalidateAll(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			c, err := New(store, WithLogger(logging.Discard()))
			require.NoError(t, err)
			defer c.Close()

			var calls int32
			compute := counting(&calls, sampleResponse())
			ctx := context.Background()

			_, _, err = c.GetOrCompute(ctx, fingerprint("products"), compute)
			require.NoError(t, err)
			_, _, err = c.GetOrCompute(ctx, fingerprint("blog"), compute)
			require.NoError(t, err)

			require.NoError(t, c.InvalidateAll())

			_, hit, err := c.GetOrCompute(ctx, fingerprint("products"), compute)
			require.NoError(t, err)
			assert.False(t, hit)
			_, hit, err = c.GetOrCompute(ctx, fingerprint("blog"), compute)
			require.NoError(t, err)
			assert.False(t, hit)
		})
	}
}

func TestCache_ConcurrentMissesComputeOnce(t *testing.T) {
	c, err := New(NewMemoryStore(16, time.Minute))
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (*services.SearchResponse, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sampleResponse(), true, nil
	}

	const callers = 20
	var wg sync.WaitGroup
	var started sync.WaitGroup
	started.Add(callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			resp, _, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
			if err == nil && len(resp.Hits) != 2 {
				err = errors.New("unexpected hits")
			}
			errs <- err
		}()
	}
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_UncacheableResponseIsNotStored(t *testing.T) {
	c, err := New(NewMemoryStore(16, time.Minute))
	require.NoError(t, err)

	var calls int32
	compute := func(ctx context.Context) (*services.SearchResponse, bool, error) {
		atomic.AddInt32(&calls, 1)
		return sampleResponse(), false, nil
	}

	for i := 0; i < 3; i++ {
		_, hit, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCache_ComputeErrorIsReturned(t *testing.T) {
	c, err := New(NewMemoryStore(16, time.Minute))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, _, err = c.GetOrCompute(context.Background(), fingerprint("products"), func(ctx context.Context) (*services.SearchResponse, bool, error) {
		return nil, false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCache_PopularOnly(t *testing.T) {
	c, err := New(NewMemoryStore(16, time.Minute), WithPopularOnly(3))
	require.NoError(t, err)

	var calls int32
	compute := counting(&calls, sampleResponse())
	ctx := context.Background()

	hits := make([]bool, 0, 5)
	for i := 0; i < 5; i++ {
		_, hit, err := c.GetOrCompute(ctx, fingerprint("products"), compute)
		require.NoError(t, err)
		hits = append(hits, hit)
	}

	// two bypasses, the third request populates, the rest hit
	assert.Equal(t, []bool{false, false, false, true, true}, hits)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCache_PopularityIsPerFingerprint(t *testing.T) {
	c, err := New(NewMemoryStore(16, time.Minute), WithPopularOnly(2))
	require.NoError(t, err)

	var calls int32
	compute := counting(&calls, sampleResponse())
	ctx := context.Background()

	_, _, err = c.GetOrCompute(ctx, fingerprint("products"), compute)
	require.NoError(t, err)
	_, _, err = c.GetOrCompute(ctx, fingerprint("blog"), compute)
	require.NoError(t, err)

	_, hit, err := c.GetOrCompute(ctx, fingerprint("products"), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = c.GetOrCompute(ctx, fingerprint("products"), compute)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCache_MemoryStoreExpires(t *testing.T) {
	store := NewMemoryStore(16, 20*time.Millisecond)
	c, err := New(store, WithTTL(20*time.Millisecond))
	require.NoError(t, err)

	var calls int32
	compute := counting(&calls, sampleResponse())

	_, _, err = c.GetOrCompute(context.Background(), fingerprint("products"), compute)
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	_, hit, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestBadgerStore_PersistsAcrossReopenButNotAcrossProcesses(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenBadgerStore(dir, logging.Discard())
	require.NoError(t, err)
	c, err := New(store)
	require.NoError(t, err)

	var calls int32
	compute := counting(&calls, sampleResponse())
	_, _, err = c.GetOrCompute(context.Background(), fingerprint("products"), compute)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	store, err = OpenBadgerStore(dir, logging.Discard())
	require.NoError(t, err)
	c, err = New(store)
	require.NoError(t, err)
	defer c.Close()

	// a new cache cannot know which invalidations it missed
	_, hit, err := c.GetOrCompute(context.Background(), fingerprint("products"), compute)
	require.NoError(t, err)
	assert.False(t, hit)
}
