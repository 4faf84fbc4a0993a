// Package search sequences the query pipeline: rule matching, redirects,
// synonym expansion, backend dispatch, ranking, promotions and caching.
package search

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/cache"
	"github.com/gcbaptista/go-search-gateway/internal/dispatch"
	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/internal/promotions"
	"github.com/gcbaptista/go-search-gateway/internal/ranking"
	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// Reasons a request is answered with an empty result before matching.
const (
	RejectEmptyQuery    = "empty_query"
	RejectQueryTooLong  = "query_too_long"
	RejectNoIndices     = "no_indices"
	RejectUnknownIndex  = "unknown_index"
	RejectIndexDisabled = "indices_disabled"
)

// Dispatcher fans a query out to the backends of the requested indices.
type Dispatcher interface {
	EffectiveBackends(indices []string) []string
	Search(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Service is the search orchestrator. It implements services.Searcher and
// services.CacheInvalidator.
type Service struct {
	snapshots  *config.SnapshotHolder
	matcher    *rules.Matcher
	dispatcher Dispatcher
	injector   *promotions.Injector

	cache      *cache.Cache // nil disables caching
	resolver   services.ContentResolver
	promotions services.PromotionSource
	adapters   dispatch.AdapterProvider

	maxQueryLength int
	defaultSiteID  int
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache wraps the pipeline with a result cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithContentResolver resolves element redirects and index statistics.
func WithContentResolver(r services.ContentResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithPromotionSource lets content changes invalidate the indices whose
// promotions pin the changed element.
func WithPromotionSource(src services.PromotionSource) Option {
	return func(s *Service) { s.promotions = src }
}

// WithAdapters enables the document write path.
func WithAdapters(p dispatch.AdapterProvider) Option {
	return func(s *Service) { s.adapters = p }
}

// WithMaxQueryLength bounds the query length in characters.
func WithMaxQueryLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxQueryLength = n
		}
	}
}

// WithDefaultSiteID sets the site used when a request names none.
func WithDefaultSiteID(id int) Option {
	return func(s *Service) { s.defaultSiteID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates the orchestrator.
func NewService(snapshots *config.SnapshotHolder, matcher *rules.Matcher, dispatcher Dispatcher, injector *promotions.Injector, opts ...Option) (*Service, error) {
	if snapshots == nil {
		return nil, fmt.Errorf("snapshot holder cannot be nil")
	}
	if matcher == nil {
		return nil, fmt.Errorf("rule matcher cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if injector == nil {
		return nil, fmt.Errorf("promotion injector cannot be nil")
	}
	s := &Service{
		snapshots:      snapshots,
		matcher:        matcher,
		dispatcher:     dispatcher,
		injector:       injector,
		maxQueryLength: 256,
		defaultSiteID:  1,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search runs the pipeline for one request. Invalid input yields an empty
// response flagged in meta.rejected. The only errors are
// ErrNoSearchCapability and the caller's context error.
func (s *Service) Search(ctx context.Context, sc services.SearchContext) (*services.SearchResponse, error) {
	start := time.Now()
	queryID := uuid.New().String()

	query := strings.TrimSpace(sc.Query)
	indices, reason := s.validate(query, sc.IndexHandles)
	if reason != "" {
		s.logger.Debug("Search rejected", "query_id", queryID, "reason", reason)
		return rejected(queryID, reason, start), nil
	}

	siteID := sc.SiteID
	if siteID == 0 {
		siteID = s.defaultSiteID
	}

	matched, err := s.matcher.Match(query, indices, siteID)
	if err != nil {
		s.logger.Warn("Rule matching failed, searching without rules", "error", err)
		matched = nil
	}

	if resp := s.redirect(ctx, matched, siteID); resp != nil {
		resp.QueryID = queryID
		resp.Took = time.Since(start).Milliseconds()
		s.record(queryID, sc, indices, siteID, resp)
		return resp, nil
	}

	variants := rules.Expand(query, matched)
	indexVariants := make(map[string][]string, len(indices))
	for _, h := range indices {
		indexVariants[h] = rules.ExpandForIndex(query, matched, h)
	}
	snap := s.snapshots.Load()
	languages := make([]string, len(indices))
	for i, h := range indices {
		languages[i] = sc.Language
		if languages[i] == "" {
			languages[i] = snap.ResolveLanguage(h)
		}
	}
	limit := sc.Options.Limit
	if limit < 0 {
		limit = 0
	}

	compute := func(ctx context.Context) (*services.SearchResponse, bool, error) {
		return s.compute(ctx, computeInput{
			query:    query,
			indices:  indices,
			variants: variants,
			perIndex: indexVariants,
			matched:  matched,
			siteID:   siteID,
			language: sc.Language,
			limit:    limit,
			elemType: sc.Options.Type,
		})
	}

	var resp *services.SearchResponse
	var hit bool
	if s.cache != nil {
		fp := cache.NewFingerprint(indices, s.dispatcher.EffectiveBackends(indices), languages, rules.Normalize(query), siteID, limit, sc.Options.Type)
		resp, hit, err = s.cache.GetOrCompute(ctx, fp, compute)
	} else {
		resp, _, err = compute(ctx)
	}
	if err != nil {
		if stdErrors.Is(err, errors.ErrNoSearchCapability) {
			s.logger.Error("No search capability", "query_id", queryID, "indices", indices, "error", err)
			return nil, fmt.Errorf("search over %s: %w", strings.Join(indices, ","), errors.ErrNoSearchCapability)
		}
		return nil, err
	}

	if resp.Meta == nil {
		resp.Meta = &services.Meta{}
	}
	resp.Meta.CacheHit = hit
	resp.QueryID = queryID
	resp.Took = time.Since(start).Milliseconds()
	s.record(queryID, sc, indices, siteID, resp)
	return resp, nil
}

type computeInput struct {
	query    string
	indices  []string
	variants []string
	perIndex map[string][]string
	matched  []*model.QueryRule
	siteID   int
	language string
	limit    int
	elemType string
}

// compute is the cached part of the pipeline: dispatch, adjust, inject.
// Partial responses are not cacheable.
//
// Boosts, filters and promotions reorder or shrink the hit list, so when any
// of them applies the backends are asked for every hit and the caller's limit
// is applied afterwards. total then counts the final list exactly.
func (s *Service) compute(ctx context.Context, in computeInput) (*services.SearchResponse, bool, error) {
	reshaped := ranking.Affects(in.matched) || s.hasPromotions(in.query, in.indices, in.siteID)
	backendLimit := in.limit
	if reshaped {
		backendLimit = 0
	}

	res, err := s.dispatcher.Search(ctx, dispatch.Request{
		Indices:       in.indices,
		Variants:      in.variants,
		IndexVariants: in.perIndex,
		SiteID:        in.siteID,
		Type:          in.elemType,
		Language:      in.language,
		Limit:         backendLimit,
	})
	if err != nil {
		return nil, false, err
	}

	hits, _ := ranking.Adjust(res.Hits, in.matched)
	hits, shown := s.injector.Inject(ctx, hits, in.query, in.indices, in.siteID)

	total := len(hits)
	if !reshaped && res.Total > total {
		total = res.Total
	}
	if in.limit > 0 && len(hits) > in.limit {
		hits = hits[:in.limit]
	}
	if hits == nil {
		hits = []model.Hit{}
	}

	meta := &services.Meta{
		Partial:           res.Partial(),
		MatchedPromotions: shown,
		Variants:          in.variants,
		Unresolved:        res.Unresolved,
		Failures:          res.Failures,
		Timings:           res.Timings,
	}
	for _, rule := range in.matched {
		meta.MatchedRules = append(meta.MatchedRules, rule.ID)
	}
	return &services.SearchResponse{Hits: hits, Total: total, Meta: meta}, !meta.Partial, nil
}

// hasPromotions reports whether any promotion matches the query. A failure
// to list promotions counts as none; Inject logs it.
func (s *Service) hasPromotions(query string, indices []string, siteID int) bool {
	matched, err := s.injector.Match(query, indices, siteID)
	return err == nil && len(matched) > 0
}

// validate returns the deduplicated enabled indices, or the reason the
// request is rejected.
func (s *Service) validate(query string, handles []string) ([]string, string) {
	if query == "" {
		return nil, RejectEmptyQuery
	}
	if utf8.RuneCountInString(query) > s.maxQueryLength {
		return nil, RejectQueryTooLong
	}
	if len(handles) == 0 {
		return nil, RejectNoIndices
	}

	snap := s.snapshots.Load()
	seen := make(map[string]bool, len(handles))
	indices := make([]string, 0, len(handles))
	for _, h := range handles {
		h = strings.TrimSpace(h)
		if seen[h] {
			continue
		}
		seen[h] = true
		def, ok := snap.Index(h)
		if !ok {
			return nil, RejectUnknownIndex
		}
		if !def.IsEnabled() {
			continue
		}
		indices = append(indices, h)
	}
	if len(indices) == 0 {
		return nil, RejectIndexDisabled
	}
	return indices, ""
}

// redirect answers the request with the first matched redirect rule. An
// element redirect that cannot be resolved to a live URL falls through to a
// normal search.
func (s *Service) redirect(ctx context.Context, matched []*model.QueryRule, siteID int) *services.SearchResponse {
	rule, action, ok := rules.FirstRedirect(matched)
	if !ok {
		return nil
	}

	target := &services.Redirect{URL: action.URL, ElementID: action.ElementID, ElementType: action.ElementType}
	if action.IsElement() {
		url, err := s.elementURL(ctx, siteID, action.ElementID)
		if err != nil {
			s.logger.Warn("Redirect target not resolvable, searching instead",
				"rule_id", rule.ID, "element_id", action.ElementID, "error", err)
			return nil
		}
		target.URL = url
	}

	return &services.SearchResponse{
		Hits:     []model.Hit{},
		Redirect: target,
		Meta:     &services.Meta{MatchedRules: []string{rule.ID}},
	}
}

func (s *Service) elementURL(ctx context.Context, siteID int, elementID string) (string, error) {
	if s.resolver == nil {
		return "", fmt.Errorf("no content resolver configured")
	}
	statuses, err := s.resolver.ResolveElements(ctx, siteID, []string{elementID})
	if err != nil {
		return "", err
	}
	status, ok := statuses[elementID]
	switch {
	case !ok:
		return "", fmt.Errorf("element does not exist")
	case !status.Live:
		return "", fmt.Errorf("element is not live")
	case status.URL == "":
		return "", fmt.Errorf("element has no url")
	}
	return status.URL, nil
}

// record emits a search event for indices with analytics enabled.
func (s *Service) record(queryID string, sc services.SearchContext, indices []string, siteID int, resp *services.SearchResponse) {
	snap := s.snapshots.Load()
	var tracked []string
	for _, h := range indices {
		if def, ok := snap.Index(h); ok && def.Analytics {
			tracked = append(tracked, h)
		}
	}
	if len(tracked) == 0 {
		return
	}
	attrs := []any{
		"query_id", queryID,
		"indices", tracked,
		"query", strings.TrimSpace(sc.Query),
		"site_id", siteID,
		"total", resp.Total,
		"took_ms", resp.Took,
	}
	if resp.Redirect != nil {
		attrs = append(attrs, "redirect", resp.Redirect.URL)
	}
	if resp.Meta != nil {
		attrs = append(attrs, "cache_hit", resp.Meta.CacheHit, "partial", resp.Meta.Partial)
	}
	s.logger.Info("search", attrs...)
}

// InvalidateIndex drops cached results of one index.
func (s *Service) InvalidateIndex(handle string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateIndex(handle)
}

// InvalidateAll drops every cached result.
func (s *Service) InvalidateAll() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateAll()
}

// ContentChanged invalidates the indices whose promotions pin elementID,
// every index when a global promotion pins it. Called on publish and
// unpublish transitions.
func (s *Service) ContentChanged(elementID string) ([]string, error) {
	if s.promotions == nil {
		return nil, s.InvalidateAll()
	}
	handles, global, err := promotions.ElementIndices(s.promotions, elementID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up promotions: %w", err)
	}
	if global {
		return []string{"*"}, s.InvalidateAll()
	}
	var errs []error
	for _, h := range handles {
		errs = append(errs, s.InvalidateIndex(h))
	}
	return handles, stdErrors.Join(errs...)
}

func rejected(queryID, reason string, start time.Time) *services.SearchResponse {
	return &services.SearchResponse{
		Hits:    []model.Hit{},
		Meta:    &services.Meta{Rejected: reason},
		QueryID: queryID,
		Took:    time.Since(start).Milliseconds(),
	}
}
