// Package promotions pins administrator-chosen elements at fixed positions
// of a result list.
package promotions

import (
	"context"
	"log/slog"
	"sort"

	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

// Injector splices live promoted elements into ranked hits.
type Injector struct {
	source   services.PromotionSource
	resolver services.ContentResolver
	logger   *slog.Logger
}

// Option configures an Injector.
type Option func(*Injector)

// WithLogger sets the injector logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Injector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInjector creates an injector. Without a resolver no promotion can be
// confirmed live, so none is ever shown.
func NewInjector(source services.PromotionSource, resolver services.ContentResolver, opts ...Option) *Injector {
	i := &Injector{source: source, resolver: resolver, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Match returns the enabled promotions in scope whose pattern matches the
// query, ordered by position with ties in source order.
func (i *Injector) Match(query string, indexHandles []string, siteID int) ([]*model.Promotion, error) {
	all, err := i.source.ListPromotions()
	if err != nil {
		return nil, err
	}

	normalized := rules.Normalize(query)
	var matched []*model.Promotion
	for _, p := range all {
		if !p.Enabled || !rules.InScope(p.IndexHandle, p.SiteID, indexHandles, siteID) {
			continue
		}
		if rules.MatchesPattern(p.MatchType, normalized, p.Query) {
			matched = append(matched, p)
		}
	}
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].Position < matched[b].Position
	})
	return matched, nil
}

// Inject inserts every matching live promotion at its position and returns
// the new hit list together with the ids of the promotions shown. Failures
// to load promotions or to resolve content drop the promotions and leave the
// hits untouched.
func (i *Injector) Inject(ctx context.Context, hits []model.Hit, query string, indexHandles []string, siteID int) ([]model.Hit, []string) {
	matched, err := i.Match(query, indexHandles, siteID)
	if err != nil {
		i.logger.Warn("failed to load promotions", "error", err)
		return hits, nil
	}
	if len(matched) == 0 {
		return hits, nil
	}
	if i.resolver == nil {
		i.logger.Warn("no content resolver configured, promotions dropped", "count", len(matched))
		return hits, nil
	}

	ids := make([]string, 0, len(matched))
	seen := make(map[string]bool, len(matched))
	for _, p := range matched {
		if !seen[p.ElementID] {
			seen[p.ElementID] = true
			ids = append(ids, p.ElementID)
		}
	}

	statuses, err := i.resolver.ResolveElements(ctx, siteID, ids)
	if err != nil {
		i.logger.Warn("failed to resolve promoted elements, promotions dropped", "site", siteID, "error", err)
		return hits, nil
	}

	var live []*model.Promotion
	injected := make(map[string]bool)
	for _, p := range matched {
		status, ok := statuses[p.ElementID]
		if !ok || !status.Live || injected[p.ElementID] {
			continue
		}
		injected[p.ElementID] = true
		live = append(live, p)
	}
	if len(live) == 0 {
		return hits, nil
	}

	// pull natural occurrences out first so positions count against the organic list
	natural := make(map[string]model.Hit, len(live))
	result := make([]model.Hit, 0, len(hits)+len(live))
	for _, h := range hits {
		if h.SiteID == siteID && injected[h.ID] {
			if _, dup := natural[h.ID]; !dup {
				natural[h.ID] = h
			}
			continue
		}
		result = append(result, h)
	}

	shown := make([]string, 0, len(live))
	for _, p := range live {
		hit, ok := natural[p.ElementID]
		if !ok {
			status := statuses[p.ElementID]
			hit = model.Hit{
				ID:     p.ElementID,
				SiteID: siteID,
				Type:   status.Type,
				Document: model.Document{
					model.FieldID:    p.ElementID,
					model.FieldTitle: status.Title,
					model.FieldURL:   status.URL,
				},
			}
			if p.IndexHandle != nil {
				hit.Index = *p.IndexHandle
			} else if len(indexHandles) == 1 {
				hit.Index = indexHandles[0]
			}
		}
		hit.Promoted = true

		pos := p.Position - 1
		if pos > len(result) {
			pos = len(result)
		}
		result = append(result, model.Hit{})
		copy(result[pos+1:], result[pos:])
		result[pos] = hit
		shown = append(shown, p.ID)
	}
	return result, shown
}

// ElementIndices returns the index handles whose cached results may show
// elementID through a promotion. global is true when a promotion without an
// index pins the element.
func ElementIndices(source services.PromotionSource, elementID string) (handles []string, global bool, err error) {
	all, err := source.ListPromotions()
	if err != nil {
		return nil, false, err
	}
	seen := make(map[string]bool)
	for _, p := range all {
		if p.ElementID != elementID {
			continue
		}
		if p.IndexHandle == nil {
			global = true
			continue
		}
		if !seen[*p.IndexHandle] {
			seen[*p.IndexHandle] = true
			handles = append(handles, *p.IndexHandle)
		}
	}
	sort.Strings(handles)
	return handles, global, nil
}
