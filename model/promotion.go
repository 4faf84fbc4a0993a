package model

import (
	"fmt"
	"strings"
	"time"
)

// Promotion pins an element at a fixed 1-based position for matching queries.
type Promotion struct {
	ID          string    `json:"id"`
	IndexHandle *string   `json:"index_handle"` // nil is global
	SiteID      *int      `json:"site_id"`      // nil is global
	Query       string    `json:"query"`
	MatchType   MatchType `json:"match_type"`
	ElementID   string    `json:"element_id"`
	Position    int       `json:"position"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks everything that must hold before a promotion is stored.
func (p *Promotion) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("promotion query is required")
	}
	switch p.MatchType {
	case MatchExact, MatchContains, MatchPrefix:
	case MatchRegex:
		return fmt.Errorf("promotions do not support regex matching")
	default:
		return fmt.Errorf("invalid match type '%s'", p.MatchType)
	}
	if strings.TrimSpace(p.ElementID) == "" {
		return fmt.Errorf("element_id is required")
	}
	if p.Position < 1 {
		return fmt.Errorf("position must be 1 or greater, got %d", p.Position)
	}
	if p.IndexHandle != nil && strings.TrimSpace(*p.IndexHandle) == "" {
		return fmt.Errorf("index handle must be omitted or non-empty")
	}
	return nil
}
