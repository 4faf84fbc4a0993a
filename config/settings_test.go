package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestApplyDefaults(t *testing.T) {
	s := &Settings{}
	s.ApplyDefaults()

	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, 256, s.Search.MaxQueryLength)
	assert.Equal(t, 5*time.Second, s.Search.BackendTimeout)
	assert.Equal(t, 16, s.Search.Workers)
	assert.Equal(t, 1, s.Search.DefaultSiteID)
	assert.Equal(t, "memory", s.Cache.Store)
	assert.Equal(t, 10*time.Minute, s.Cache.TTL)
	assert.Equal(t, 3, s.Cache.PopularThreshold)
	assert.Empty(t, s.Validate())
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	s := &Settings{
		Server: ServerSettings{Port: 9000},
		Search: SearchSettings{MaxQueryLength: 64, Workers: 2},
		Cache:  CacheSettings{Store: "badger"},
	}
	s.ApplyDefaults()

	assert.Equal(t, 9000, s.Server.Port)
	assert.Equal(t, 64, s.Search.MaxQueryLength)
	assert.Equal(t, 2, s.Search.Workers)
	assert.Equal(t, "badger", s.Cache.Store)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name           string
		yaml           string
		expectedErrors int
	}{
		{
			name:           "valid backends and indices",
			yaml:           "backends:\n  - {handle: main, type: bleve}\nindices:\n  - {handle: docs}\n",
			expectedErrors: 0,
		},
		{
			name:           "unknown backend type",
			yaml:           "backends:\n  - {handle: main, type: solr}\n",
			expectedErrors: 1,
		},
		{
			name:           "duplicate handles",
			yaml:           "backends:\n  - {handle: main, type: bleve}\n  - {handle: main, type: native}\nindices:\n  - {handle: docs}\n  - {handle: docs}\n",
			expectedErrors: 2,
		},
		{
			name:           "bad cache store",
			yaml:           "cache:\n  store: redis\n",
			expectedErrors: 1,
		},
		{
			name:           "handles with separators",
			yaml:           "backends:\n  - {handle: 'a:b', type: bleve}\nindices:\n  - {handle: 'x,y'}\n",
			expectedErrors: 2,
		},
		{
			name:           "content driver without dsn",
			yaml:           "content:\n  driver: sqlite\n",
			expectedErrors: 1,
		},
		{
			name:           "unknown content driver",
			yaml:           "content:\n  driver: mysql\n  dsn: x\n",
			expectedErrors: 1,
		},
		{
			name:           "missing handles",
			yaml:           "backends:\n  - {type: bleve}\nindices:\n  - {language: en}\n",
			expectedErrors: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parseSettings(t, tt.yaml)
			errs := s.Validate()
			assert.Len(t, errs, tt.expectedErrors, "errors: %v", errs)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
server:
  port: 9090
search:
  backend_timeout: 250ms
  max_query_length: 100
cache:
  enabled: true
  ttl: 1m
default_backend: main
backends:
  - handle: main
    type: native
    settings:
      dir: /tmp/native
indices:
  - handle: docs
    element_type: entry
    language: en
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, s.Server.Port)
	assert.Equal(t, 250*time.Millisecond, s.Search.BackendTimeout)
	assert.Equal(t, 100, s.Search.MaxQueryLength)
	assert.Equal(t, time.Minute, s.Cache.TTL)
	assert.Equal(t, "main", s.DefaultBackend)
	require.Len(t, s.Backends, 1)
	assert.Equal(t, "/tmp/native", s.Backends[0].Setting("dir", ""))
	require.Len(t, s.Indices, 1)
	assert.False(t, s.Indices[0].IsEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvDebugToken, "secret")
	t.Setenv(EnvDefaultBackend, "fallback")

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, s.Server.Port)
	assert.Equal(t, "secret", s.Server.DebugToken)
	assert.Equal(t, "fallback", s.DefaultBackend)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv(EnvPort, "not-a-port")
	_, err = Load("")
	assert.Error(t, err)
}

func parseSettings(t *testing.T, content string) *Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s := &Settings{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, s))
	s.ApplyDefaults()
	return s
}
