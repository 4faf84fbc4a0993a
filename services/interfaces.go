package services

import (
	"context"

	"github.com/gcbaptista/go-search-gateway/model"
)

// BackendSearchOptions narrows a single backend search call.
type BackendSearchOptions struct {
	Limit    int    // 0 returns every match the engine is willing to return
	SiteID   int    // 0 searches every site
	Type     string // element type filter, "" for any
	Language string // analyzer/text-search configuration hint
}

// BackendHit is a raw hit as returned by an engine.
type BackendHit struct {
	ID       string
	SiteID   int
	Score    float64
	Document model.Document
}

// BackendResult is the answer of one Search call.
type BackendResult struct {
	Hits  []BackendHit
	Total int
}

// BackendStatus describes the health of a backend instance.
type BackendStatus struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Available bool           `json:"available"`
	Indices   map[string]int `json:"indices,omitempty"` // document count per index
	Error     string         `json:"error,omitempty"`
}

// BackendAdapter is the uniform contract every search engine implementation satisfies.
// Documents are addressed by their site-scoped key (see model.DocumentKey).
type BackendAdapter interface {
	Index(ctx context.Context, index string, doc model.Document) error
	BatchIndex(ctx context.Context, index string, docs []model.Document) error
	Delete(ctx context.Context, index string, key string) error
	Search(ctx context.Context, index string, query string, opts BackendSearchOptions) (*BackendResult, error)
	ClearIndex(ctx context.Context, index string) error
	DocumentExists(ctx context.Context, index string, key string) (bool, error)
	IsAvailable(ctx context.Context) bool
	Status(ctx context.Context) (*BackendStatus, error)
	Name() string
}

// ElementStatus is the current state of an element in the content store.
type ElementStatus struct {
	ID    string `json:"id"`
	Live  bool   `json:"live"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

// ContentResolver answers liveness and display data for elements of a site.
// Elements missing from the returned map do not exist.
type ContentResolver interface {
	ResolveElements(ctx context.Context, siteID int, ids []string) (map[string]ElementStatus, error)
}

// RuleSource supplies the configured query rules.
type RuleSource interface {
	ListRules() ([]*model.QueryRule, error)
}

// PromotionSource supplies the configured promotions.
type PromotionSource interface {
	ListPromotions() ([]*model.Promotion, error)
}

// SearchOptions are the caller options that change the shape of the output.
type SearchOptions struct {
	Limit int    `json:"limit"` // 0 means all
	Type  string `json:"type,omitempty"`
}

// SearchContext carries everything a search needs through every stage.
type SearchContext struct {
	IndexHandles []string      `json:"indices"`
	Query        string        `json:"query"`
	SiteID       int           `json:"site_id,omitempty"` // 0 uses the default site
	Language     string        `json:"language,omitempty"`
	Options      SearchOptions `json:"options"`
}

// Redirect is returned instead of hits when a redirect rule matches.
type Redirect struct {
	URL         string `json:"url"`
	ElementID   string `json:"element_id,omitempty"`
	ElementType string `json:"element_type,omitempty"`
}

// BackendFailure records one (index, variant) call that yielded nothing.
type BackendFailure struct {
	Index    string `json:"index"`
	Backend  string `json:"backend,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Error    string `json:"error"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// BackendTiming records the duration of one (index, variant) call.
type BackendTiming struct {
	Index   string  `json:"index"`
	Backend string  `json:"backend"`
	Variant string  `json:"variant"`
	TookMs  float64 `json:"took_ms"`
	Hits    int     `json:"hits"`
}

// Meta is response metadata. Only Partial and Rejected are public; everything else is
// debug information for authorized callers.
type Meta struct {
	Partial           bool             `json:"partial"`
	Rejected          string           `json:"rejected,omitempty"`
	CacheHit          bool             `json:"cache_hit"`
	MatchedRules      []string         `json:"matched_rules,omitempty"`
	MatchedPromotions []string         `json:"matched_promotions,omitempty"`
	Variants          []string         `json:"variants,omitempty"`
	Unresolved        []string         `json:"unresolved_indices,omitempty"`
	Failures          []BackendFailure `json:"failures,omitempty"`
	Timings           []BackendTiming  `json:"timings,omitempty"`
}

// Public strips everything but the partial flag and the rejection reason.
func (m *Meta) Public() *Meta {
	if m == nil {
		return nil
	}
	return &Meta{Partial: m.Partial, Rejected: m.Rejected}
}

// SearchResponse is the public search contract.
type SearchResponse struct {
	Hits     []model.Hit `json:"hits"`
	Total    int         `json:"total"`
	Redirect *Redirect   `json:"redirect,omitempty"`
	Meta     *Meta       `json:"meta,omitempty"`
	QueryID  string      `json:"query_id"`
	Took     int64       `json:"took"` // milliseconds
}

// MultiSearchQuery represents a request to execute multiple named searches
type MultiSearchQuery struct {
	Queries []NamedSearchQuery `json:"queries"`
}

// NamedSearchQuery is one entry of a multi-search request
type NamedSearchQuery struct {
	Name string `json:"name"`
	SearchContext
}

// MultiSearchResult represents the response from a multi-search operation
type MultiSearchResult struct {
	Results          map[string]*SearchResponse `json:"results"`
	Errors           map[string]string          `json:"errors,omitempty"`
	TotalQueries     int                        `json:"total_queries"`
	ProcessingTimeMs float64                    `json:"processing_time_ms"`
}

// Searcher runs the full query pipeline.
type Searcher interface {
	Search(ctx context.Context, sc SearchContext) (*SearchResponse, error)
}

// MultiSearcher runs several searches concurrently.
type MultiSearcher interface {
	MultiSearch(ctx context.Context, query MultiSearchQuery) (*MultiSearchResult, error)
}

// CacheInvalidator is called by the admin layer whenever rules, promotions,
// index definitions or content change.
type CacheInvalidator interface {
	InvalidateIndex(handle string) error
	InvalidateAll() error
}
