package model

import "strings"

// Backend types understood by the adapter registry.
const (
	BackendNative   = "native"
	BackendBleve    = "bleve"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// KnownBackendType reports whether t names a supported backend engine.
func KnownBackendType(t string) bool {
	switch t {
	case BackendNative, BackendBleve, BackendSQLite, BackendPostgres:
		return true
	}
	return false
}

// ValidHandle reports whether h is usable as a backend or index handle:
// letters, digits, '-' and '_' only.
func ValidHandle(h string) bool {
	if h == "" {
		return false
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// BackendDefinition is one configured (credentialed) instance of a backend engine.
type BackendDefinition struct {
	Handle   string            `yaml:"handle" json:"handle"`
	Type     string            `yaml:"type" json:"type"`
	Settings map[string]string `yaml:"settings" json:"settings,omitempty"`
	Enabled  *bool             `yaml:"enabled" json:"enabled,omitempty"` // nil means enabled
}

// IsEnabled reports whether the backend may serve queries.
func (b *BackendDefinition) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Setting returns a settings value or def when unset.
func (b *BackendDefinition) Setting(key, def string) string {
	if v, ok := b.Settings[key]; ok && v != "" {
		return v
	}
	return def
}

// IndexDefinition is a logical index: a filtered view over one element type.
type IndexDefinition struct {
	Handle      string            `yaml:"handle" json:"handle"`
	Name        string            `yaml:"name" json:"name,omitempty"`
	ElementType string            `yaml:"element_type" json:"element_type,omitempty"`
	Criteria    map[string]string `yaml:"criteria" json:"criteria,omitempty"`
	Backend     string            `yaml:"backend" json:"backend,omitempty"` // overrides the default backend
	Language    string            `yaml:"language" json:"language,omitempty"`
	Enabled     *bool             `yaml:"enabled" json:"enabled,omitempty"` // nil means enabled
	Analytics   bool              `yaml:"analytics" json:"analytics"`
}

// IsEnabled reports whether the index may be searched.
func (i *IndexDefinition) IsEnabled() bool {
	return i.Enabled == nil || *i.Enabled
}

// Accepts reports whether a document belongs in the index: its type must
// match the element type (when set) and every criteria field must match.
func (i *IndexDefinition) Accepts(doc Document) bool {
	if i.ElementType != "" && !strings.EqualFold(doc.GetType(), i.ElementType) {
		return false
	}
	for field, value := range i.Criteria {
		if !doc.FieldMatches(field, value) {
			return false
		}
	}
	return true
}
