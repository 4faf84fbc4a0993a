package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

const keyPrefix = "search:"

// Fingerprint is every input that shapes a search response. Requests with
// equal fingerprints are cache-equivalent.
type Fingerprint struct {
	Indices   []string `json:"indices"`
	Query     string   `json:"query"`     // normalized
	Backends  []string `json:"backends"`  // effective backend handle per index
	Languages []string `json:"languages"` // effective language per index
	SiteID    int      `json:"site_id"`
	Limit     int      `json:"limit"`
	Type      string   `json:"type"`
}

// NewFingerprint builds a fingerprint with indices sorted; backends and
// languages are given in the order of indices and follow the sort.
func NewFingerprint(indices, backends, languages []string, query string, siteID, limit int, elementType string) Fingerprint {
	type entry struct{ index, backend, language string }
	entries := make([]entry, len(indices))
	for i, index := range indices {
		entries[i].index = index
		if i < len(backends) {
			entries[i].backend = backends[i]
		}
		if i < len(languages) {
			entries[i].language = languages[i]
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	fp := Fingerprint{
		Query:  query,
		SiteID: siteID,
		Limit:  limit,
		Type:   elementType,
	}
	for _, e := range entries {
		fp.Indices = append(fp.Indices, e.index)
		fp.Backends = append(fp.Backends, e.backend)
		fp.Languages = append(fp.Languages, e.language)
	}
	return fp
}

// Hash returns the hex sha256 of the canonical JSON encoding.
func (f Fingerprint) Hash() string {
	return hashOf(f)
}

func hashOf(v interface{}) string {
	// struct field order is fixed, so the encoding is canonical
	data, _ := json.Marshal(v)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// storageKey embeds the index list so entries can be purged per index.
func storageKey(indices []string, hash string) string {
	return keyPrefix + strings.Join(indices, ",") + ":" + hash
}

// keyIndices extracts the index handles from a storage key.
func keyIndices(key string) []string {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return nil
	}
	sep := strings.LastIndexByte(rest, ':')
	if sep < 0 {
		return nil
	}
	return strings.Split(rest[:sep], ",")
}

// keyMentions reports whether a storage key holds results of index.
func keyMentions(key, index string) bool {
	for _, h := range keyIndices(key) {
		if h == index {
			return true
		}
	}
	return false
}
