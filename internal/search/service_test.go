package search

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcbaptista/go-search-gateway/config"
	"github.com/gcbaptista/go-search-gateway/internal/cache"
	"github.com/gcbaptista/go-search-gateway/internal/content"
	"github.com/gcbaptista/go-search-gateway/internal/dispatch"
	searchErrors "github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/internal/logging"
	"github.com/gcbaptista/go-search-gateway/internal/promotions"
	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/internal/testutil"
	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

type fixture struct {
	svc      *Service
	adapter  *testutil.FakeAdapter
	rules    *rules.Store
	promos   *promotions.Store
	resolver *content.StaticResolver
}

func strPtr(s string) *string { return &s }

func disabled() *bool {
	f := false
	return &f
}

// testSnapshot serves four indices on one backend: docs and news are
// searchable, archive is disabled, tracked has analytics on.
func testSnapshot() *config.SnapshotHolder {
	layer := config.Layer{
		DefaultBackend:  "main",
		DefaultLanguage: "en",
		Backends:        []model.BackendDefinition{{Handle: "main", Type: model.BackendNative}},
		Indices: []model.IndexDefinition{
			{Handle: "docs", ElementType: "entry"},
			{Handle: "news", Language: "de"},
			{Handle: "archive", Enabled: disabled()},
			{Handle: "tracked", Analytics: true},
		},
	}
	return config.NewSnapshotHolder(config.NewSnapshot(layer, config.Layer{}))
}

func newFixture(t *testing.T, withCache bool, opts ...Option) *fixture {
	t.Helper()
	snapshots := testSnapshot()
	adapter := testutil.NewFakeAdapter("main")
	provider := &testutil.Provider{Adapters: map[string]services.BackendAdapter{"main": adapter}}

	d, err := dispatch.New(snapshots, provider, dispatch.WithLogger(logging.Discard()), dispatch.WithPoolSize(4),
		dispatch.WithTimeout(200*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(d.Release)

	ruleStore := rules.NewMemoryStore()
	promoStore := promotions.NewMemoryStore()
	resolver := content.NewStaticResolver()
	matcher := rules.NewMatcher(ruleStore, rules.WithLogger(logging.Discard()))
	injector := promotions.NewInjector(promoStore, resolver, promotions.WithLogger(logging.Discard()))

	base := []Option{
		WithLogger(logging.Discard()),
		WithContentResolver(resolver),
		WithPromotionSource(promoStore),
		WithAdapters(provider),
		WithMaxQueryLength(32),
	}
	if withCache {
		c, err := cache.New(cache.NewMemoryStore(128, time.Minute), cache.WithLogger(logging.Discard()))
		require.NoError(t, err)
		base = append(base, WithCache(c))
	}

	svc, err := NewService(snapshots, matcher, d, injector, append(base, opts...)...)
	require.NoError(t, err)
	return &fixture{svc: svc, adapter: adapter, rules: ruleStore, promos: promoStore, resolver: resolver}
}

func (f *fixture) index(t *testing.T, index string, docs ...model.Document) {
	t.Helper()
	require.NoError(t, f.adapter.BatchIndex(context.Background(), index, docs))
}

func (f *fixture) rule(t *testing.T, name string, matchType model.MatchType, value string, priority int, action model.RuleAction) *model.QueryRule {
	t.Helper()
	r, err := f.rules.CreateRule(model.QueryRule{
		Name: name, Enabled: true, MatchType: matchType, MatchValue: value, Priority: priority, Action: action,
	})
	require.NoError(t, err)
	return r
}

func search(query string, indices ...string) services.SearchContext {
	return services.SearchContext{IndexHandles: indices, Query: query}
}

func hitIDs(hits []model.Hit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSearch_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, "docs", testutil.Doc("1", "laptop"))

	tests := []struct {
		name   string
		sc     services.SearchContext
		reason string
	}{
		{"empty query", search("   ", "docs"), RejectEmptyQuery},
		{"over-length query", search(strings.Repeat("a", 33), "docs"), RejectQueryTooLong},
		{"no indices", search("laptop"), RejectNoIndices},
		{"unknown index", search("laptop", "docs", "missing"), RejectUnknownIndex},
		{"only disabled indices", search("laptop", "archive"), RejectIndexDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.Search(context.Background(), tt.sc)
			require.NoError(t, err)
			assert.Empty(t, resp.Hits)
			assert.Equal(t, tt.reason, resp.Meta.Rejected)
			assert.NotEmpty(t, resp.QueryID)
		})
	}
	assert.Empty(t, f.adapter.SearchCalls(), "rejected requests never reach a backend")
}

func TestSearch_OverLengthRejectedBeforeMatching(t *testing.T) {
	f := newFixture(t, false)
	long := strings.Repeat("b", 40)
	f.rule(t, "redirect long", model.MatchContains, "bbb", 1, model.RedirectAction{URL: "/long"})

	resp, err := f.svc.Search(context.Background(), search(long, "docs"))
	require.NoError(t, err)
	assert.Nil(t, resp.Redirect)
	assert.Equal(t, RejectQueryTooLong, resp.Meta.Rejected)
}

func TestSearch_MultiByteQueryLength(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, "docs", testutil.Doc("1", strings.Repeat("ü", 32), "type", "entry"))

	resp, err := f.svc.Search(context.Background(), search(strings.Repeat("ü", 32), "docs"))
	require.NoError(t, err)
	assert.Empty(t, resp.Meta.Rejected, "length counts characters, not bytes")
}

func TestSearch_DisabledIndexSkipped(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, "docs", testutil.Doc("1", "laptop", "type", "entry"))
	f.index(t, "archive", testutil.Doc("2", "laptop"))

	resp, err := f.svc.Search(context.Background(), search("laptop", "docs", "archive"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, hitIDs(resp.Hits))
	for _, call := range f.adapter.SearchCalls() {
		assert.NotEqual(t, "archive", call.Index)
	}
}

func TestSearch_FullPipeline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.index(t, "docs",
		testutil.Doc("1", "notebook intro", "score", 10.0, "section", "blog", "status", "published"),
		testutil.Doc("2", "laptop docs", "score", 8.0, "section", "docs", "status", "published"),
		testutil.Doc("3", "laptop draft", "score", 6.0, "section", "docs", "status", "draft"),
		testutil.Doc("4", "laptop misc", "score", 4.0, "section", "misc", "status", "published"),
	)
	f.resolver.Set(1, services.ElementStatus{ID: "4", Live: true, Type: "entry"})

	synonym := f.rule(t, "laptop synonyms", model.MatchExact, "laptop", 10, model.SynonymAction{Terms: []string{"notebook", "LAPTOP"}})
	boost := f.rule(t, "boost docs", model.MatchContains, "lap", 5, model.BoostAction{Kind: model.ActionBoostSection, Target: "docs", Multiplier: 2})
	f.rule(t, "published only", model.MatchPrefix, "lap", 1, model.FilterAction{Field: "status", Value: "published"})
	_, err := f.promos.CreatePromotion(model.Promotion{Query: "laptop", MatchType: model.MatchExact, ElementID: "4", Position: 1, Enabled: true})
	require.NoError(t, err)

	resp, err := f.svc.Search(ctx, search("  Laptop ", "docs"))
	require.NoError(t, err)

	// 2 is boosted to 16, 1 keeps 10, 3 is filtered, 4 is promoted to the top
	assert.Equal(t, []string{"4", "2", "1"}, hitIDs(resp.Hits))
	assert.True(t, resp.Hits[0].Promoted)
	assert.Equal(t, 16.0, resp.Hits[1].Score)
	assert.True(t, resp.Hits[1].Boosted)
	assert.Equal(t, []string{"notebook"}, resp.Hits[2].MatchedIn)
	assert.Equal(t, 3, resp.Total)

	assert.Equal(t, []string{"Laptop", "notebook"}, resp.Meta.Variants)
	assert.Contains(t, resp.Meta.MatchedRules, synonym.ID)
	assert.Contains(t, resp.Meta.MatchedRules, boost.ID)
	assert.Len(t, resp.Meta.MatchedPromotions, 1)
	assert.False(t, resp.Meta.Partial)

	for _, call := range f.adapter.SearchCalls() {
		assert.Equal(t, 1, call.Options.SiteID, "default site is applied")
		assert.Equal(t, "en", call.Options.Language)
	}
}

func TestSearch_RedirectSuppressesDispatch(t *testing.T) {
	f := newFixture(t, true)
	f.index(t, "docs", testutil.Doc("1", "old-page"))
	low := f.rule(t, "low redirect", model.MatchExact, "old-page", 1, model.RedirectAction{URL: "/low"})
	high := f.rule(t, "high redirect", model.MatchExact, "old-page", 9, model.RedirectAction{URL: "/new-page"})

	resp, err := f.svc.Search(context.Background(), search("old-page", "docs"))
	require.NoError(t, err)
	require.NotNil(t, resp.Redirect)
	assert.Equal(t, "/new-page", resp.Redirect.URL)
	assert.Equal(t, []string{high.ID}, resp.Meta.MatchedRules)
	assert.NotContains(t, resp.Meta.MatchedRules, low.ID)
	assert.Empty(t, resp.Hits)
	assert.Empty(t, f.adapter.SearchCalls())
}

func TestSearch_ElementRedirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.index(t, "docs", testutil.Doc("1", "pricing", "type", "entry"))
	f.rule(t, "pricing", model.MatchExact, "pricing", 1, model.RedirectAction{ElementID: "42", ElementType: "entry"})

	t.Run("live element redirects to its url", func(t *testing.T) {
		f.resolver.Set(1, services.ElementStatus{ID: "42", Live: true, URL: "/pricing"})
		resp, err := f.svc.Search(ctx, search("pricing", "docs"))
		require.NoError(t, err)
		require.NotNil(t, resp.Redirect)
		assert.Equal(t, "/pricing", resp.Redirect.URL)
		assert.Equal(t, "42", resp.Redirect.ElementID)
	})

	t.Run("unpublished element falls through to search", func(t *testing.T) {
		f.resolver.Set(1, services.ElementStatus{ID: "42", Live: false, URL: "/pricing"})
		resp, err := f.svc.Search(ctx, search("pricing", "docs"))
		require.NoError(t, err)
		assert.Nil(t, resp.Redirect)
		assert.Equal(t, []string{"1"}, hitIDs(resp.Hits))
	})
}

func TestSearch_CacheHitAndInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.index(t, "docs", testutil.Doc("1", "laptop", "type", "entry"), testutil.Doc("2", "laptop bag", "type", "entry"))

	first, err := f.svc.Search(ctx, search("laptop", "docs"))
	require.NoError(t, err)
	assert.False(t, first.Meta.CacheHit)

	second, err := f.svc.Search(ctx, search("LAPTOP", "docs"))
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit, "normalized query shares the fingerprint")
	assert.Len(t, f.adapter.SearchCalls(), 1)

	firstHits, err := json.Marshal(first.Hits)
	require.NoError(t, err)
	secondHits, err := json.Marshal(second.Hits)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstHits), string(secondHits))
	assert.NotEqual(t, first.QueryID, second.QueryID)

	require.NoError(t, f.svc.InvalidateIndex("docs"))
	third, err := f.svc.Search(ctx, search("laptop", "docs"))
	require.NoError(t, err)
	assert.False(t, third.Meta.CacheHit)
	assert.Len(t, f.adapter.SearchCalls(), 2)

	// a different limit is a different fingerprint
	limited := search("laptop", "docs")
	limited.Options.Limit = 1
	resp, err := f.svc.Search(ctx, limited)
	require.NoError(t, err)
	assert.False(t, resp.Meta.CacheHit)
	assert.Len(t, resp.Hits, 1)
	assert.Equal(t, 2, resp.Total)
}

func TestSearch_LimitZeroReturnsAll(t *testing.T) {
	f := newFixture(t, false)
	docs := make([]model.Document, 0, 30)
	for i := 0; i < 30; i++ {
		docs = append(docs, testutil.Doc(string(rune('a'+i%26))+strings.Repeat("x", i/26), "laptop", "type", "entry"))
	}
	f.index(t, "docs", docs...)

	resp, err := f.svc.Search(context.Background(), search("laptop", "docs"))
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 30)
	assert.Equal(t, 30, resp.Total)
	for _, call := range f.adapter.SearchCalls() {
		assert.Equal(t, 0, call.Options.Limit)
	}
}

func TestSearch_LimitAppliedAfterRanking(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		docs      []model.Document
		actions   []model.RuleAction
		wantIDs   []string
		wantTotal int
	}{
		{
			name: "filter keeps matches ranked below the limit",
			docs: []model.Document{
				testutil.Doc("1", "laptop one", "score", 10.0, "section", "blog"),
				testutil.Doc("2", "laptop two", "score", 9.0, "section", "blog"),
				testutil.Doc("3", "laptop three", "score", 8.0, "section", "docs"),
				testutil.Doc("4", "laptop four", "score", 7.0, "section", "docs"),
			},
			actions: []model.RuleAction{
				model.FilterAction{Field: "section", Value: "docs"},
				model.BoostAction{Kind: model.ActionBoostSection, Target: "docs", Multiplier: 2},
			},
			wantIDs:   []string{"3", "4"},
			wantTotal: 2,
		},
		{
			name: "boost lifts a hit from below the limit",
			docs: []model.Document{
				testutil.Doc("1", "laptop one", "score", 10.0, "section", "blog"),
				testutil.Doc("2", "laptop two", "score", 9.0, "section", "blog"),
				testutil.Doc("3", "laptop three", "score", 8.0, "section", "blog"),
				testutil.Doc("4", "laptop four", "score", 6.0, "section", "docs"),
			},
			actions: []model.RuleAction{
				model.BoostAction{Kind: model.ActionBoostSection, Target: "docs", Multiplier: 2},
			},
			wantIDs:   []string{"4", "1"},
			wantTotal: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.index(t, "docs", tt.docs...)
			for i, action := range tt.actions {
				f.rule(t, "rule", model.MatchExact, "laptop", len(tt.actions)-i, action)
			}

			sc := search("laptop", "docs")
			sc.Options.Limit = 2
			resp, err := f.svc.Search(ctx, sc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, hitIDs(resp.Hits))
			assert.Equal(t, tt.wantTotal, resp.Total)
			for _, call := range f.adapter.SearchCalls() {
				assert.Equal(t, 0, call.Options.Limit, "backends return every hit when rules reshape the list")
			}
		})
	}
}

func TestSearch_TotalCountsInjectedPromotion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.index(t, "docs",
		testutil.Doc("1", "laptop one", "score", 3.0),
		testutil.Doc("2", "laptop two", "score", 2.0),
		testutil.Doc("3", "laptop three", "score", 1.0),
	)
	f.resolver.Set(1, services.ElementStatus{ID: "9", Live: true, Type: "entry", Title: "Laptop deals"})
	_, err := f.promos.CreatePromotion(model.Promotion{Query: "laptop", MatchType: model.MatchExact, ElementID: "9", Position: 1, Enabled: true})
	require.NoError(t, err)

	sc := search("laptop", "docs")
	sc.Options.Limit = 1
	resp, err := f.svc.Search(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, hitIDs(resp.Hits))
	assert.Equal(t, 4, resp.Total)
}

func TestSearch_ScopedSynonymsStayInTheirIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.index(t, "docs", testutil.Doc("1", "notebook guide", "type", "entry"))
	f.index(t, "news", testutil.Doc("2", "notebook review"))

	_, err := f.rules.CreateRule(model.QueryRule{
		Name: "docs synonyms", Enabled: true, MatchType: model.MatchExact, MatchValue: "laptop",
		IndexHandle: strPtr("docs"), Action: model.SynonymAction{Terms: []string{"notebook"}},
	})
	require.NoError(t, err)

	resp, err := f.svc.Search(ctx, search("laptop", "docs", "news"))
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "1", resp.Hits[0].ID)
	assert.Equal(t, "docs", resp.Hits[0].Index)
	assert.Equal(t, []string{"laptop", "notebook"}, resp.Meta.Variants)

	for _, call := range f.adapter.SearchCalls() {
		if call.Index == "news" {
			assert.Equal(t, "laptop", call.Query)
		}
	}
}

func TestSearch_PartialFailureNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.index(t, "docs", testutil.Doc("1", "laptop", "type", "entry"))
	f.adapter.SetError("news", errors.New("connection refused"))

	resp, err := f.svc.Search(ctx, search("laptop", "docs", "news"))
	require.NoError(t, err)
	assert.True(t, resp.Meta.Partial)
	assert.Equal(t, []string{"1"}, hitIDs(resp.Hits))
	require.Len(t, resp.Meta.Failures, 1)
	assert.Equal(t, "news", resp.Meta.Failures[0].Index)

	again, err := f.svc.Search(ctx, search("laptop", "docs", "news"))
	require.NoError(t, err)
	assert.False(t, again.Meta.CacheHit)
}

func TestSearch_NoSearchCapability(t *testing.T) {
	f := newFixture(t, false)
	f.adapter.SetError("docs", errors.New("down"))

	_, err := f.svc.Search(context.Background(), search("laptop", "docs"))
	require.Error(t, err)
	assert.ErrorIs(t, err, searchErrors.ErrNoSearchCapability)
}

func TestSearch_LanguageOverride(t *testing.T) {
	f := newFixture(t, false)
	f.index(t, "news", testutil.Doc("1", "laptop"))

	_, err := f.svc.Search(context.Background(), search("laptop", "news"))
	require.NoError(t, err)
	sc := search("laptop", "news")
	sc.Language = "fr"
	_, err = f.svc.Search(context.Background(), sc)
	require.NoError(t, err)

	calls := f.adapter.SearchCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "de", calls[0].Options.Language)
	assert.Equal(t, "fr", calls[1].Options.Language)
}

func TestContentChanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.index(t, "docs", testutil.Doc("1", "laptop", "type", "entry"))
	f.index(t, "news", testutil.Doc("1", "laptop"))
	_, err := f.promos.CreatePromotion(model.Promotion{IndexHandle: strPtr("docs"), Query: "laptop", MatchType: model.MatchExact, ElementID: "99", Position: 1, Enabled: true})
	require.NoError(t, err)

	for _, idx := range []string{"docs", "news"} {
		_, err := f.svc.Search(ctx, search("laptop", idx))
		require.NoError(t, err)
	}

	// element 99 goes live: only docs pins it
	f.resolver.Set(1, services.ElementStatus{ID: "99", Live: true, Type: "entry"})
	handles, err := f.svc.ContentChanged("99")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, handles)

	docs, err := f.svc.Search(ctx, search("laptop", "docs"))
	require.NoError(t, err)
	assert.False(t, docs.Meta.CacheHit)
	assert.Equal(t, []string{"99", "1"}, hitIDs(docs.Hits))

	news, err := f.svc.Search(ctx, search("laptop", "news"))
	require.NoError(t, err)
	assert.True(t, news.Meta.CacheHit)

	_, err = f.promos.CreatePromotion(model.Promotion{Query: "laptop", MatchType: model.MatchExact, ElementID: "77", Position: 1, Enabled: true})
	require.NoError(t, err)
	handles, err = f.svc.ContentChanged("77")
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, handles)
}

func TestMultiSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.index(t, "docs", testutil.Doc("1", "laptop", "type", "entry"))
	f.index(t, "news", testutil.Doc("2", "phone"))
	f.adapter.SetError("tracked", errors.New("down"))

	result, err := f.svc.MultiSearch(ctx, services.MultiSearchQuery{Queries: []services.NamedSearchQuery{
		{Name: "laptops", SearchContext: search("laptop", "docs")},
		{Name: "phones", SearchContext: search("phone", "news")},
		{Name: "broken", SearchContext: search("phone", "tracked")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalQueries)
	assert.Equal(t, []string{"1"}, hitIDs(result.Results["laptops"].Hits))
	assert.Equal(t, []string{"2"}, hitIDs(result.Results["phones"].Hits))
	assert.Contains(t, result.Errors["broken"], "no search capability")

	_, err = f.svc.MultiSearch(ctx, services.MultiSearchQuery{})
	assert.Error(t, err)
	_, err = f.svc.MultiSearch(ctx, services.MultiSearchQuery{Queries: []services.NamedSearchQuery{
		{Name: "a", SearchContext: search("x", "docs")},
		{Name: "a", SearchContext: search("y", "docs")},
	}})
	assert.Error(t, err)
}
