package rules

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gcbaptista/go-search-gateway/model"
	"github.com/gcbaptista/go-search-gateway/services"
)

const defaultRegexCacheSize = 512

// Normalize trims and lowercases a query or pattern.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatchesPattern applies a non-regex match type to an already normalized
// query. The pattern is normalized here.
func MatchesPattern(matchType model.MatchType, normalizedQuery, pattern string) bool {
	pattern = Normalize(pattern)
	switch matchType {
	case model.MatchExact:
		return normalizedQuery == pattern
	case model.MatchContains:
		return strings.Contains(normalizedQuery, pattern)
	case model.MatchPrefix:
		return strings.HasPrefix(normalizedQuery, pattern)
	default:
		return false
	}
}

// Matcher evaluates query rules against a query.
type Matcher struct {
	source services.RuleSource
	logger *slog.Logger

	// compiled patterns keyed by source; nil marks a pattern that does not compile
	regexCache *lru.Cache[string, *regexp.Regexp]
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithLogger sets the logger used for rejected patterns.
func WithLogger(logger *slog.Logger) MatcherOption {
	return func(m *Matcher) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMatcher creates a matcher reading rules from source.
func NewMatcher(source services.RuleSource, opts ...MatcherOption) *Matcher {
	cache, err := lru.New[string, *regexp.Regexp](defaultRegexCacheSize)
	if err != nil {
		panic(fmt.Sprintf("rules: regex cache: %v", err))
	}
	m := &Matcher{
		source:     source,
		logger:     slog.Default(),
		regexCache: cache,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns the enabled rules in scope for the indices and site whose
// pattern matches the query, sorted by priority descending. Rules with equal
// priority keep the order of the source. A rule is in scope when its index
// handle is nil or one of indexHandles, and its site id is nil or siteID.
func (m *Matcher) Match(query string, indexHandles []string, siteID int) ([]*model.QueryRule, error) {
	all, err := m.source.ListRules()
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	normalized := Normalize(query)
	var matched []*model.QueryRule
	for _, rule := range all {
		if !rule.Enabled || !InScope(rule.IndexHandle, rule.SiteID, indexHandles, siteID) {
			continue
		}
		if m.matches(rule, normalized) {
			matched = append(matched, rule)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched, nil
}

func (m *Matcher) matches(rule *model.QueryRule, normalizedQuery string) bool {
	if rule.MatchType != model.MatchRegex {
		return MatchesPattern(rule.MatchType, normalizedQuery, rule.MatchValue)
	}
	re := m.compile(strings.TrimSpace(rule.MatchValue))
	return re != nil && re.MatchString(normalizedQuery)
}

// compile returns the case-insensitive regexp for pattern, nil when it does not compile.
func (m *Matcher) compile(pattern string) *regexp.Regexp {
	if re, ok := m.regexCache.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		m.logger.Debug("ignoring rule with invalid regex", "pattern", pattern, "error", err)
		re = nil
	}
	m.regexCache.Add(pattern, re)
	return re
}

// InScope reports whether a rule or promotion scoped to (ruleIndex, ruleSite)
// applies to a query over indexHandles on siteID.
func InScope(ruleIndex *string, ruleSite *int, indexHandles []string, siteID int) bool {
	if ruleSite != nil && *ruleSite != siteID {
		return false
	}
	if ruleIndex == nil {
		return true
	}
	for _, h := range indexHandles {
		if h == *ruleIndex {
			return true
		}
	}
	return false
}

// AppliesToIndex reports whether a matched rule targets hits from index.
func AppliesToIndex(rule *model.QueryRule, index string) bool {
	return rule.IndexHandle == nil || *rule.IndexHandle == index
}

// FirstRedirect returns the first redirect rule in the matched order.
func FirstRedirect(matched []*model.QueryRule) (*model.QueryRule, model.RedirectAction, bool) {
	for _, rule := range matched {
		if action, ok := rule.Action.(model.RedirectAction); ok {
			return rule, action, true
		}
	}
	return nil, model.RedirectAction{}, false
}
