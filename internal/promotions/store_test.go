package promotions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	searchErrors "github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
)

func TestStore_CRUD(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.CreatePromotion(model.Promotion{Query: "shoes", MatchType: model.MatchRegex, ElementID: "1", Position: 1})
	assert.True(t, errors.Is(err, searchErrors.ErrInvalidInput))

	created, err := store.CreatePromotion(model.Promotion{Query: "shoes", MatchType: model.MatchExact, ElementID: "1", Position: 2, Enabled: true})
	require.NoError(t, err)

	update := *created
	update.Position = 1
	update.IndexHandle = strPtr("docs")
	updated, previous, err := store.UpdatePromotion(update)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Position)
	assert.Equal(t, 2, previous.Position)

	scoped, err := store.FilterPromotions("news")
	require.NoError(t, err)
	assert.Empty(t, scoped)

	deleted, err := store.DeletePromotion(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "docs", *deleted.IndexHandle)

	_, err = store.GetPromotion(created.ID)
	assert.True(t, errors.Is(err, searchErrors.ErrPromotionNotFound))
}

func TestFileStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	first, err := store.CreatePromotion(model.Promotion{Query: "a", MatchType: model.MatchExact, ElementID: "1", Position: 1})
	require.NoError(t, err)
	second, err := store.CreatePromotion(model.Promotion{Query: "b", MatchType: model.MatchPrefix, ElementID: "2", Position: 3})
	require.NoError(t, err)

	reloaded, err := NewFileStore(dir)
	require.NoError(t, err)
	list, err := reloaded.ListPromotions()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
}
