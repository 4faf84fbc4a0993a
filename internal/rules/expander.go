package rules

import (
	"strings"

	"github.com/gcbaptista/go-search-gateway/model"
)

// Expand returns the query variants to dispatch: the original query first,
// followed by every synonym term of the matched rules in rule order.
// Variants are deduplicated case-insensitively.
func Expand(query string, matched []*model.QueryRule) []string {
	original := strings.TrimSpace(query)
	variants := []string{original}
	seen := map[string]bool{Normalize(original): true}

	for _, rule := range matched {
		synonyms, ok := rule.Action.(model.SynonymAction)
		if !ok {
			continue
		}
		for _, term := range synonyms.Terms {
			term = strings.TrimSpace(term)
			key := Normalize(term)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			variants = append(variants, term)
		}
	}
	return variants
}

// ExpandForIndex is Expand restricted to the matched rules that target index,
// so a synonym scoped to one index never rewrites the query of another.
func ExpandForIndex(query string, matched []*model.QueryRule, index string) []string {
	scoped := make([]*model.QueryRule, 0, len(matched))
	for _, rule := range matched {
		if AppliesToIndex(rule, index) {
			scoped = append(scoped, rule)
		}
	}
	return Expand(query, scoped)
}
