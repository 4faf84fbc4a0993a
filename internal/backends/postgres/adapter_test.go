package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-search-gateway/internal/logging"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// Integration tests run against SEARCH_GATEWAY_TEST_POSTGRES_DSN when set.
func openTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dsn := os.Getenv("SEARCH_GATEWAY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SEARCH_GATEWAY_TEST_POSTGRES_DSN not set")
	}
	a, err := Open(context.Background(), "pg", dsn, "search_gateway_test", WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.ClearIndex(context.Background(), "products")
		_ = a.Close()
	})
	require.NoError(t, a.ClearIndex(context.Background(), "products"))
	return a
}

func TestLanguageConfig(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"en", "english"},
		{"en-US", "english"},
		{"de_AT", "german"},
		{"PT", "portuguese"},
		{"", "simple"},
		{"xx", "simple"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, languageConfig(tt.language, "simple"), tt.language)
	}
}

func TestOpen_RejectsBadSchema(t *testing.T) {
	_, err := Open(context.Background(), "pg", "postgres://localhost/db", `bad"schema`)
	assert.Error(t, err)
}

func TestOpen_RejectsBadDSN(t *testing.T) {
	_, err := Open(context.Background(), "pg", "::not a dsn::", "ok")
	assert.Error(t, err)
}

func TestAdapter_Integration(t *testing.T) {
	a := openTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.BatchIndex(ctx, "products", []model.Document{
		{"id": "1", "siteId": 1, "type": "product", "title": "Red running shoes", "language": "en"},
		{"id": "2", "siteId": 1, "type": "article", "title": "Cleaning shoes", "language": "en"},
		{"id": "3", "siteId": 2, "type": "product", "title": "Blue shoes", "language": "en"},
	}))

	res, err := a.Search(ctx, "products", "shoe", services.BackendSearchOptions{Language: "en", SiteID: 1})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.Equal(t, 2, res.Total)

	res, err = a.Search(ctx, "products", "shoes", services.BackendSearchOptions{Language: "en", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, 3, res.Total)

	res, err = a.Search(ctx, "products", "shoes", services.BackendSearchOptions{Language: "en", Type: "product", SiteID: 2})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "3", res.Hits[0].ID)

	exists, err := a.DocumentExists(ctx, "products", model.DocumentKey("2", 1))
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, a.Delete(ctx, "products", model.DocumentKey("2", 1)))
	exists, err = a.DocumentExists(ctx, "products", model.DocumentKey("2", 1))
	require.NoError(t, err)
	assert.False(t, exists)

	status, err := a.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.Equal(t, 2, status.Indices["products"])
}
