package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Reserved document keys understood by every backend adapter.
const (
	FieldID         = "id"
	FieldSiteID     = "siteId"
	FieldType       = "type"
	FieldSection    = "section"
	FieldCategories = "categories"
	FieldTitle      = "title"
	FieldURL        = "url"
	FieldLanguage   = "language" // stamped by the write path with the index language
)

// Document is a flexible map representing a searchable document produced by the
// (external) content transformer. Only "id" is required; "siteId", "type",
// "section" and "categories" are used for scoping, boosting and filtering.
// Example: doc["title"], doc["section"]
type Document map[string]interface{}

// DocumentKey builds the backend-level key of an element on a site. The same
// element id exists once per site, so the id alone is not unique.
func DocumentKey(id string, siteID int) string {
	return id + ":" + strconv.Itoa(siteID)
}

// GetDocumentID returns the element id stored under "id".
func (d Document) GetDocumentID() (string, bool) {
	id, ok := d[FieldID]
	if !ok || id == nil {
		return "", false
	}
	str := stringify(id)
	if str == "" {
		return "", false
	}
	return str, true
}

// GetSiteID returns the site id, 0 when absent or not numeric.
func (d Document) GetSiteID() int {
	switch v := d[FieldSiteID].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}

// Key returns the backend-level key of the document.
func (d Document) Key() (string, bool) {
	id, ok := d.GetDocumentID()
	if !ok {
		return "", false
	}
	return DocumentKey(id, d.GetSiteID()), true
}

// GetType returns the element type (e.g. "entry", "product").
func (d Document) GetType() string {
	return d.GetString(FieldType)
}

// GetSection returns the section handle of the element.
func (d Document) GetSection() string {
	return d.GetString(FieldSection)
}

// GetCategories returns the category ids of the element as strings.
func (d Document) GetCategories() []string {
	return d.GetStrings(FieldCategories)
}

// GetString returns a scalar field as a string, "" if missing.
func (d Document) GetString(field string) string {
	v, ok := d[field]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// GetStrings returns a field as a list of strings. Scalars become a one-element list.
func (d Document) GetStrings(field string) []string {
	v, ok := d[field]
	if !ok || v == nil {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

// FieldMatches reports whether the field equals value. For list fields any element may match.
func (d Document) FieldMatches(field, value string) bool {
	for _, candidate := range d.GetStrings(field) {
		if candidate == value {
			return true
		}
	}
	return false
}

// Text concatenates every string-valued field except the reserved scoping keys.
// Adapters that index a single content column use it.
func (d Document) Text() string {
	var b strings.Builder
	for _, key := range sortedKeys(d) {
		switch key {
		case FieldID, FieldSiteID, FieldType, FieldCategories, FieldLanguage:
			continue
		}
		for _, s := range d.GetStrings(key) {
			if s == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(s)
		}
	}
	return b.String()
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; element ids are integral
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func sortedKeys(d Document) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
