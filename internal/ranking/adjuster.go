// Package ranking applies rule-driven boosts and filters to merged hits.
package ranking

import (
	"sort"

	"github.com/gcbaptista/go-search-gateway/internal/rules"
	"github.com/gcbaptista/go-search-gateway/model"
)

// Adjust multiplies each hit's score by every applicable boost, drops hits
// failing any applicable filter, and re-sorts by score descending. Equal
// scores keep their incoming order. A rule applies to a hit when it is global
// or scoped to the hit's index. The number of filtered hits is returned.
func Adjust(hits []model.Hit, matched []*model.QueryRule) ([]model.Hit, int) {
	var boosts []*model.QueryRule
	var filters []*model.QueryRule
	for _, rule := range matched {
		switch rule.Action.(type) {
		case model.BoostAction:
			boosts = append(boosts, rule)
		case model.FilterAction:
			filters = append(filters, rule)
		}
	}
	if len(boosts) == 0 && len(filters) == 0 {
		return hits, 0
	}

	adjusted := make([]model.Hit, 0, len(hits))
	for _, hit := range hits {
		if !passesFilters(&hit, filters) {
			continue
		}
		for _, rule := range boosts {
			if !rules.AppliesToIndex(rule, hit.Index) {
				continue
			}
			boost := rule.Action.(model.BoostAction)
			if boostApplies(&hit, boost) {
				hit.Score *= boost.Multiplier
				hit.Boosted = true
			}
		}
		adjusted = append(adjusted, hit)
	}

	sort.SliceStable(adjusted, func(i, j int) bool {
		return adjusted[i].Score > adjusted[j].Score
	})
	return adjusted, len(hits) - len(adjusted)
}

// Affects reports whether any matched rule boosts or filters hits.
func Affects(matched []*model.QueryRule) bool {
	for _, rule := range matched {
		switch rule.Action.(type) {
		case model.BoostAction, model.FilterAction:
			return true
		}
	}
	return false
}

func boostApplies(hit *model.Hit, boost model.BoostAction) bool {
	switch boost.Kind {
	case model.ActionBoostSection:
		return hit.Section() == boost.Target
	case model.ActionBoostCategory:
		return hit.InCategory(boost.Target)
	case model.ActionBoostElement:
		return hit.ID == boost.Target
	}
	return false
}

func passesFilters(hit *model.Hit, filters []*model.QueryRule) bool {
	for _, rule := range filters {
		if !rules.AppliesToIndex(rule, hit.Index) {
			continue
		}
		filter := rule.Action.(model.FilterAction)
		if !hit.FieldEquals(filter.Field, filter.Value) {
			return false
		}
	}
	return true
}
