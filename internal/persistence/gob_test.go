package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Docs   map[uint32]map[string]interface{}
	NextID uint32
}

func TestSaveAndLoadGob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.gob")
	in := snapshot{
		Docs: map[uint32]map[string]interface{}{
			1: {"id": "42", "title": "Hello", "categories": []interface{}{"a", "b"}, "score": 1.5},
		},
		NextID: 2,
	}

	require.NoError(t, SaveGob(path, in))

	var out snapshot
	require.NoError(t, LoadGob(path, &out))
	assert.Equal(t, in, out)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadGob_Missing(t *testing.T) {
	var out snapshot
	err := LoadGob(filepath.Join(t.TempDir(), "missing.gob"), &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	require.NoError(t, SaveGob(path, snapshot{NextID: 1}))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
