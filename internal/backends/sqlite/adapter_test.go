package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-search-gateway/internal/logging"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

func openAdapter(t *testing.T, path string) *Adapter {
	t.Helper()
	a, err := Open("sqlite", path, WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func seed(t *testing.T, a *Adapter) {
	t.Helper()
	require.NoError(t, a.BatchIndex(context.Background(), "products", []model.Document{
		{"id": "1", "siteId": 1, "type": "product", "title": "Red running shoes", "categories": []interface{}{"7"}},
		{"id": "2", "siteId": 1, "type": "article", "title": "Shoes shoes shoes"},
		{"id": "3", "siteId": 2, "type": "product", "title": "Blue shoes"},
		{"id": "4", "siteId": 1, "type": "product", "title": "Winter jacket"},
	}))
}

func hitIDs(res *services.BackendResult) []string {
	out := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.ID)
	}
	return out
}

func TestMatchExpression(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"red shoes", `"red" OR "shoes"*`},
		{`say "hi" NEAR(x)`, `"say" OR "hi" OR "near" OR "x"*`},
		{"  ", ""},
		{"***", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchExpression(tt.in), tt.in)
	}
}

func TestAdapter_Search(t *testing.T) {
	a := openAdapter(t, "")
	seed(t, a)
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		opts      services.BackendSearchOptions
		wantIDs   []string
		wantTotal int
	}{
		{"site filter", "shoes", services.BackendSearchOptions{SiteID: 1}, []string{"1", "2"}, 2},
		{"type filter", "shoes", services.BackendSearchOptions{Type: "product"}, []string{"1", "3"}, 2},
		{"prefix on last term", "jack", services.BackendSearchOptions{}, []string{"4"}, 1},
		{"no match", "umbrella", services.BackendSearchOptions{}, nil, 0},
		{"operators are literal", "shoes AND NOT", services.BackendSearchOptions{SiteID: 2}, []string{"3"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := a.Search(ctx, "products", tt.query, tt.opts)
			require.NoError(t, err)
			if tt.wantIDs == nil {
				assert.Empty(t, res.Hits)
			} else {
				assert.ElementsMatch(t, tt.wantIDs, hitIDs(res))
			}
			assert.Equal(t, tt.wantTotal, res.Total)
		})
	}
}

func TestAdapter_SearchRanksAndLimits(t *testing.T) {
	a := openAdapter(t, "")
	seed(t, a)
	ctx := context.Background()

	res, err := a.Search(ctx, "products", "shoes", services.BackendSearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "2", res.Hits[0].ID, "most occurrences ranks first")
	assert.Equal(t, 3, res.Total)
	assert.Greater(t, res.Hits[0].Score, 0.0)

	res, err = a.Search(ctx, "products", "running", services.BackendSearchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, []string{"7"}, res.Hits[0].Document.GetCategories())
	assert.Equal(t, 1, res.Hits[0].SiteID)
}

func TestAdapter_IndicesAreIsolated(t *testing.T) {
	a := openAdapter(t, "")
	seed(t, a)
	ctx := context.Background()

	require.NoError(t, a.Index(ctx, "blog", model.Document{"id": "1", "siteId": 1, "title": "shoes review"}))

	res, err := a.Search(ctx, "blog", "shoes", services.BackendSearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, hitIDs(res))
	assert.Equal(t, "shoes review", res.Hits[0].Document.GetString("title"))
}

func TestAdapter_ReplaceDeleteClear(t *testing.T) {
	a := openAdapter(t, "")
	seed(t, a)
	ctx := context.Background()
	key := model.DocumentKey("4", 1)

	require.NoError(t, a.Index(ctx, "products", model.Document{"id": "4", "siteId": 1, "type": "product", "title": "Rain coat"}))
	res, err := a.Search(ctx, "products", "jacket", services.BackendSearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)

	require.NoError(t, a.Delete(ctx, "products", key))
	exists, err := a.DocumentExists(ctx, "products", key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, a.ClearIndex(ctx, "products"))
	status, err := a.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.Empty(t, status.Indices)
}

func TestAdapter_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.db")
	ctx := context.Background()

	a, err := Open("sqlite", path)
	require.NoError(t, err)
	seed(t, a)
	require.NoError(t, a.Close())

	reopened := openAdapter(t, path)
	exists, err := reopened.DocumentExists(ctx, "products", model.DocumentKey("3", 2))
	require.NoError(t, err)
	assert.True(t, exists)

	status, err := reopened.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"products": 4}, status.Indices)
}
