package backends

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-search-gateway/internal/logging"
	"github.com/gcbaptista/go-search-gateway/internal/testutil"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

type closingAdapter struct {
	*testutil.FakeAdapter
	closed bool
}

func (c *closingAdapter) Close() error {
	c.closed = true
	return nil
}

func boolPtr(b bool) *bool { return &b }

func TestRegistry_BuiltInEngines(t *testing.T) {
	r := NewRegistry(Env{Logger: logging.Discard()})
	defer r.Close()

	for _, typ := range []string{model.BackendNative, model.BackendBleve, model.BackendSQLite} {
		t.Run(typ, func(t *testing.T) {
			a, err := r.Adapter(model.BackendDefinition{Handle: typ + "-1", Type: typ})
			require.NoError(t, err)
			assert.Equal(t, typ+"-1", a.Name())

			ctx := context.Background()
			require.NoError(t, a.Index(ctx, "blog", model.Document{"id": "1", "siteId": 1, "title": "hello gateway"}))
			res, err := a.Search(ctx, "blog", "gateway", services.BackendSearchOptions{})
			require.NoError(t, err)
			require.Len(t, res.Hits, 1)
			assert.Equal(t, "1", res.Hits[0].ID)
		})
	}
}

func TestRegistry_CachesAndRebuildsOnChange(t *testing.T) {
	builds := 0
	var last *closingAdapter
	r := NewRegistry(Env{Logger: logging.Discard()}, WithFactory("fake", func(_ context.Context, def model.BackendDefinition, _ Env) (services.BackendAdapter, error) {
		builds++
		last = &closingAdapter{FakeAdapter: testutil.NewFakeAdapter(def.Handle)}
		return last, nil
	}))

	def := model.BackendDefinition{Handle: "main", Type: "fake", Settings: map[string]string{"host": "a"}}
	first, err := r.Adapter(def)
	require.NoError(t, err)
	firstAdapter := last
	again, err := r.Adapter(def)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, builds)

	def.Settings = map[string]string{"host": "b"}
	_, err = r.Adapter(def)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
	assert.True(t, firstAdapter.closed, "replaced adapter is closed")

	r.Reset("main")
	assert.True(t, last.closed)
	_, err = r.Adapter(def)
	require.NoError(t, err)
	assert.Equal(t, 3, builds)
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry(Env{Logger: logging.Discard()})

	_, err := r.Adapter(model.BackendDefinition{Handle: "x", Type: "elastic"})
	assert.Error(t, err)

	_, err = r.Adapter(model.BackendDefinition{Handle: "pg", Type: model.BackendPostgres})
	assert.ErrorContains(t, err, "dsn")

	_, err = r.Adapter(model.BackendDefinition{Handle: "n", Type: model.BackendNative,
		Settings: map[string]string{"min_word_size_for_1_typo": "four"}})
	assert.ErrorContains(t, err, "min_word_size_for_1_typo")
}

func TestRegistry_NativeTypoSettings(t *testing.T) {
	r := NewRegistry(Env{Logger: logging.Discard()})
	defer r.Close()
	ctx := context.Background()

	search := func(handle string, settings map[string]string) int {
		a, err := r.Adapter(model.BackendDefinition{Handle: handle, Type: model.BackendNative, Settings: settings})
		require.NoError(t, err)
		require.NoError(t, a.Index(ctx, "blog", model.Document{"id": "1", "siteId": 1, "title": "gateway release"}))
		res, err := a.Search(ctx, "blog", "gatewya", services.BackendSearchOptions{})
		require.NoError(t, err)
		return len(res.Hits)
	}

	assert.Equal(t, 1, search("typos-on", nil))
	assert.Equal(t, 0, search("typos-off", map[string]string{"min_word_size_for_1_typo": "0"}))
}

func TestRegistry_DataDirLayout(t *testing.T) {
	dir := t.TempDir()
	env := Env{DataDir: dir}

	assert.Equal(t, filepath.Join(dir, "native", "main"), storagePath(model.BackendDefinition{Handle: "main"}, env, "native", ""))
	assert.Equal(t, filepath.Join(dir, "sqlite", "main.db"), storagePath(model.BackendDefinition{Handle: "main"}, env, "sqlite", ".db"))
	assert.Equal(t, "/custom", storagePath(model.BackendDefinition{Handle: "main", Settings: map[string]string{"path": "/custom"}}, env, "native", ""))
	assert.Equal(t, "", storagePath(model.BackendDefinition{Handle: "main"}, Env{}, "native", ""))
}

func TestRegistry_StatusAll(t *testing.T) {
	r := NewRegistry(Env{Logger: logging.Discard()},
		WithFactory("fake", func(context.Context, model.BackendDefinition, Env) (services.BackendAdapter, error) {
			return nil, errors.New("connection refused")
		}))

	statuses := r.StatusAll(context.Background(), []model.BackendDefinition{
		{Handle: "primary", Type: model.BackendNative},
		{Handle: "broken", Type: "fake"},
		{Handle: "off", Type: model.BackendNative, Enabled: boolPtr(false)},
	})
	require.Len(t, statuses, 3)

	byName := map[string]services.BackendStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	assert.True(t, byName["primary"].Available)
	assert.False(t, byName["broken"].Available)
	assert.Contains(t, byName["broken"].Error, "connection refused")
	assert.False(t, byName["off"].Available)
	assert.Equal(t, "backend is disabled", byName["off"].Error)
	assert.Equal(t, []string{"broken", "off", "primary"}, []string{statuses[0].Name, statuses[1].Name, statuses[2].Name})
}
