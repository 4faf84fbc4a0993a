// Package config provides configuration structures for the search gateway.
// It defines the process settings file and the resolved snapshot of
// backends and logical indices the query pipeline reads from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gcbaptista/go-search-gateway/internal/logging"
	"github.com/gcbaptista/go-search-gateway/model"
)

// Environment variables that override the settings file.
const (
	EnvPort           = "SEARCH_GATEWAY_PORT"
	EnvDebugToken     = "SEARCH_GATEWAY_DEBUG_TOKEN"
	EnvDefaultBackend = "SEARCH_GATEWAY_DEFAULT_BACKEND"
)

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Port         int    `yaml:"port" json:"port"`
	Mode         string `yaml:"mode" json:"mode"`                     // gin mode: release, debug, test
	DebugToken   string `yaml:"debug_token" json:"-"`                 // required to see debug metadata; empty disables debug output
	MaxBodyBytes int64  `yaml:"max_body_bytes" json:"max_body_bytes"` // request body limit
}

// SearchSettings configures the query pipeline.
type SearchSettings struct {
	MaxQueryLength int           `yaml:"max_query_length" json:"max_query_length"`
	BackendTimeout time.Duration `yaml:"backend_timeout" json:"backend_timeout"` // bound on each (index, variant) call
	Workers        int           `yaml:"workers" json:"workers"`                 // dispatcher pool size
	DefaultSiteID  int           `yaml:"default_site_id" json:"default_site_id"`
	DefaultLimit   int           `yaml:"default_limit" json:"default_limit"` // used when the caller sends no limit at all
}

// CacheSettings configures the result cache.
type CacheSettings struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	Store            string        `yaml:"store" json:"store"` // memory or badger
	Path             string        `yaml:"path" json:"path"`   // badger directory, empty for in-memory badger
	TTL              time.Duration `yaml:"ttl" json:"ttl"`
	Size             int           `yaml:"size" json:"size"` // memory store capacity
	PopularOnly      bool          `yaml:"popular_only" json:"popular_only"`
	PopularThreshold int           `yaml:"popular_threshold" json:"popular_threshold"`
}

// DataSettings configures where file-backed stores live.
type DataSettings struct {
	Dir string `yaml:"dir" json:"dir"` // empty keeps every store in memory
}

// ContentSettings locates the content store promotions and element
// redirects are resolved against.
type ContentSettings struct {
	Driver string `yaml:"driver" json:"driver"` // sqlite or postgres, empty disables resolution
	DSN    string `yaml:"dsn" json:"-"`
	Table  string `yaml:"table" json:"table"`
}

// Settings is the full process configuration.
type Settings struct {
	Server          ServerSettings            `yaml:"server" json:"server"`
	Search          SearchSettings            `yaml:"search" json:"search"`
	Cache           CacheSettings             `yaml:"cache" json:"cache"`
	Logging         logging.Config            `yaml:"logging" json:"logging"`
	Data            DataSettings              `yaml:"data" json:"data"`
	Content         ContentSettings           `yaml:"content" json:"content"`
	DefaultBackend  string                    `yaml:"default_backend" json:"default_backend"`
	DefaultLanguage string                    `yaml:"default_language" json:"default_language"`
	Backends        []model.BackendDefinition `yaml:"backends" json:"backends"`
	Indices         []model.IndexDefinition   `yaml:"indices" json:"indices"`
}

// ApplyDefaults fills every unset value.
func (s *Settings) ApplyDefaults() {
	if s.Server.Port == 0 {
		s.Server.Port = 8080
	}
	if s.Server.Mode == "" {
		s.Server.Mode = "release"
	}
	if s.Server.MaxBodyBytes == 0 {
		s.Server.MaxBodyBytes = 32 << 20
	}
	if s.Search.MaxQueryLength == 0 {
		s.Search.MaxQueryLength = 256
	}
	if s.Search.BackendTimeout == 0 {
		s.Search.BackendTimeout = 5 * time.Second
	}
	if s.Search.Workers == 0 {
		s.Search.Workers = 16
	}
	if s.Search.DefaultSiteID == 0 {
		s.Search.DefaultSiteID = 1
	}
	if s.Search.DefaultLimit == 0 {
		s.Search.DefaultLimit = 20
	}
	if s.Cache.Store == "" {
		s.Cache.Store = "memory"
	}
	if s.Cache.TTL == 0 {
		s.Cache.TTL = 10 * time.Minute
	}
	if s.Cache.Size == 0 {
		s.Cache.Size = 4096
	}
	if s.Cache.PopularThreshold == 0 {
		s.Cache.PopularThreshold = 3
	}
	if s.Content.Table == "" {
		s.Content.Table = "elements"
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = "json"
	}
}

// Validate returns every problem found in the settings.
func (s *Settings) Validate() []string {
	var errors []string

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server.port must be between 1 and 65535, got %d", s.Server.Port))
	}
	if s.Search.MaxQueryLength < 1 {
		errors = append(errors, "search.max_query_length must be positive")
	}
	if s.Search.BackendTimeout < 0 {
		errors = append(errors, "search.backend_timeout cannot be negative")
	}
	if s.Search.Workers < 1 {
		errors = append(errors, "search.workers must be positive")
	}
	if s.Search.DefaultLimit < 0 {
		errors = append(errors, "search.default_limit cannot be negative")
	}
	switch s.Cache.Store {
	case "memory", "badger":
	default:
		errors = append(errors, fmt.Sprintf("cache.store must be 'memory' or 'badger', got '%s'", s.Cache.Store))
	}
	if s.Cache.TTL < 0 {
		errors = append(errors, "cache.ttl cannot be negative")
	}
	if s.Cache.PopularOnly && s.Cache.PopularThreshold < 1 {
		errors = append(errors, "cache.popular_threshold must be positive when popular_only is set")
	}

	switch s.Content.Driver {
	case "":
	case "sqlite", "postgres":
		if s.Content.DSN == "" {
			errors = append(errors, "content.dsn is required when content.driver is set")
		}
	default:
		errors = append(errors, fmt.Sprintf("content.driver must be 'sqlite' or 'postgres', got '%s'", s.Content.Driver))
	}

	seen := make(map[string]bool)
	for i, b := range s.Backends {
		if strings.TrimSpace(b.Handle) == "" {
			errors = append(errors, fmt.Sprintf("backends[%d].handle is required", i))
			continue
		}
		if !model.ValidHandle(b.Handle) {
			errors = append(errors, fmt.Sprintf("backend handle '%s' may only contain letters, digits, '-' and '_'", b.Handle))
		}
		if seen[b.Handle] {
			errors = append(errors, "Duplicate backend handle '"+b.Handle+"'")
		}
		seen[b.Handle] = true
		if !model.KnownBackendType(b.Type) {
			errors = append(errors, fmt.Sprintf("backend '%s' has unknown type '%s'", b.Handle, b.Type))
		}
	}

	seen = make(map[string]bool)
	for i, idx := range s.Indices {
		if strings.TrimSpace(idx.Handle) == "" {
			errors = append(errors, fmt.Sprintf("indices[%d].handle is required", i))
			continue
		}
		if !model.ValidHandle(idx.Handle) {
			errors = append(errors, fmt.Sprintf("index handle '%s' may only contain letters, digits, '-' and '_'", idx.Handle))
		}
		if seen[idx.Handle] {
			errors = append(errors, "Duplicate index handle '"+idx.Handle+"'")
		}
		seen[idx.Handle] = true
	}

	return errors
}

// Layer returns the backends and indices declared in the file.
func (s *Settings) Layer() Layer {
	return Layer{
		DefaultBackend:  s.DefaultBackend,
		DefaultLanguage: s.DefaultLanguage,
		Backends:        s.Backends,
		Indices:         s.Indices,
	}
}

// Default returns settings with every default applied.
func Default() *Settings {
	s := &Settings{}
	s.ApplyDefaults()
	return s
}

// Load reads a YAML settings file, applies environment overrides and
// defaults, then validates. An empty path yields the defaults.
func Load(path string) (*Settings, error) {
	s := &Settings{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := s.applyEnvOverrides(); err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	if problems := s.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return s, nil
}

func (s *Settings) applyEnvOverrides() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		s.Server.Port = port
	}
	if v := os.Getenv(EnvDebugToken); v != "" {
		s.Server.DebugToken = v
	}
	if v := os.Getenv(EnvDefaultBackend); v != "" {
		s.DefaultBackend = v
	}
	return nil
}
