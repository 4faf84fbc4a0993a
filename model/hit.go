package model

import "strconv"

// Hit is one entry of a search response.
type Hit struct {
	ID        string   `json:"id"`
	SiteID    int      `json:"site_id"`
	Type      string   `json:"type,omitempty"`
	Score     float64  `json:"score"`
	Index     string   `json:"index,omitempty"`
	Backend   string   `json:"backend,omitempty"`
	MatchedIn []string `json:"matched_in,omitempty"` // query variants that produced the hit
	Promoted  bool     `json:"promoted,omitempty"`
	Boosted   bool     `json:"boosted,omitempty"`
	Document  Document `json:"document,omitempty"`
}

// Key is the site-scoped identity used for deduplication.
func (h *Hit) Key() string {
	return DocumentKey(h.ID, h.SiteID)
}

// Section returns the content section the hit belongs to.
func (h *Hit) Section() string {
	return h.Document.GetSection()
}

// InCategory reports whether the hit is tagged with the category.
func (h *Hit) InCategory(category string) bool {
	return h.Document.FieldMatches(FieldCategories, category)
}

// FieldEquals reports whether the hit's field equals value. "id", "type" and
// "siteId" are answered from the hit itself.
func (h *Hit) FieldEquals(field, value string) bool {
	switch field {
	case FieldID:
		return h.ID == value
	case FieldType:
		return h.Type == value
	case FieldSiteID:
		return strconv.Itoa(h.SiteID) == value
	}
	return h.Document.FieldMatches(field, value)
}
