package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MatchType is how a rule or promotion pattern is compared against the normalized query.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchPrefix   MatchType = "prefix"
	MatchRegex    MatchType = "regex"
)

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool {
	switch m {
	case MatchExact, MatchContains, MatchPrefix, MatchRegex:
		return true
	}
	return false
}

// ActionType identifies the variant of a RuleAction.
type ActionType string

const (
	ActionSynonym       ActionType = "synonym"
	ActionBoostSection  ActionType = "boost_section"
	ActionBoostCategory ActionType = "boost_category"
	ActionBoostElement  ActionType = "boost_element"
	ActionFilter        ActionType = "filter"
	ActionRedirect      ActionType = "redirect"
)

// RuleAction is the typed payload of a QueryRule. Exactly one concrete type
// exists per ActionType; values are only produced by ParseRuleAction or by
// constructing the concrete types directly, and Validate must pass before a
// rule is persisted.
type RuleAction interface {
	Type() ActionType
	Validate() error
}

// SynonymAction dispatches each term as an additional query variant.
type SynonymAction struct {
	Terms []string `json:"terms"`
}

func (a SynonymAction) Type() ActionType { return ActionSynonym }

func (a SynonymAction) Validate() error {
	if len(a.Terms) == 0 {
		return fmt.Errorf("synonym action requires at least one term")
	}
	for i, term := range a.Terms {
		if strings.TrimSpace(term) == "" {
			return fmt.Errorf("synonym term %d is empty", i)
		}
	}
	return nil
}

// BoostAction multiplies the score of hits in a section, in a category or of one element.
type BoostAction struct {
	Kind       ActionType `json:"-"`
	Target     string     `json:"target"`
	Multiplier float64    `json:"multiplier"`
}

func (a BoostAction) Type() ActionType { return a.Kind }

func (a BoostAction) Validate() error {
	switch a.Kind {
	case ActionBoostSection, ActionBoostCategory, ActionBoostElement:
	default:
		return fmt.Errorf("invalid boost kind '%s'", a.Kind)
	}
	if strings.TrimSpace(a.Target) == "" {
		return fmt.Errorf("%s action requires a target", a.Kind)
	}
	return nil
}

// FilterAction keeps only hits whose Field equals Value.
type FilterAction struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (a FilterAction) Type() ActionType { return ActionFilter }

func (a FilterAction) Validate() error {
	if strings.TrimSpace(a.Field) == "" {
		return fmt.Errorf("filter action requires a field")
	}
	return nil
}

// RedirectAction sends the caller to a literal URL or to the URL of an element.
type RedirectAction struct {
	URL         string `json:"url,omitempty"`
	ElementID   string `json:"element_id,omitempty"`
	ElementType string `json:"element_type,omitempty"`
}

func (a RedirectAction) Type() ActionType { return ActionRedirect }

func (a RedirectAction) Validate() error {
	hasURL := strings.TrimSpace(a.URL) != ""
	hasElement := strings.TrimSpace(a.ElementID) != ""
	switch {
	case hasURL && hasElement:
		return fmt.Errorf("redirect action takes either a url or an element, not both")
	case !hasURL && !hasElement:
		return fmt.Errorf("redirect action requires a url or an element_id")
	}
	return nil
}

// IsElement reports whether the destination must be resolved through the content store.
func (a RedirectAction) IsElement() bool {
	return a.URL == "" && a.ElementID != ""
}

// ParseRuleAction decodes and validates the action payload for actionType.
func ParseRuleAction(actionType ActionType, raw json.RawMessage) (RuleAction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("action_value is required for action type '%s'", actionType)
	}

	var action RuleAction
	switch actionType {
	case ActionSynonym:
		var a SynonymAction
		if raw[0] == '[' {
			if err := json.Unmarshal(raw, &a.Terms); err != nil {
				return nil, fmt.Errorf("invalid synonym terms: %w", err)
			}
		} else if err := strictUnmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("invalid synonym action: %w", err)
		}
		action = a
	case ActionBoostSection, ActionBoostCategory, ActionBoostElement:
		var payload struct {
			Target     json.RawMessage `json:"target"`
			Multiplier *float64        `json:"multiplier"`
		}
		if err := strictUnmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("invalid %s action: %w", actionType, err)
		}
		if payload.Multiplier == nil {
			return nil, fmt.Errorf("%s action requires a numeric multiplier", actionType)
		}
		target, err := scalarString(payload.Target)
		if err != nil {
			return nil, fmt.Errorf("invalid %s target: %w", actionType, err)
		}
		action = BoostAction{Kind: actionType, Target: target, Multiplier: *payload.Multiplier}
	case ActionFilter:
		var payload struct {
			Field string          `json:"field"`
			Value json.RawMessage `json:"value"`
		}
		if err := strictUnmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("invalid filter action: %w", err)
		}
		value, err := scalarString(payload.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid filter value: %w", err)
		}
		action = FilterAction{Field: payload.Field, Value: value}
	case ActionRedirect:
		var a RedirectAction
		if err := strictUnmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("invalid redirect action: %w", err)
		}
		action = a
	default:
		return nil, fmt.Errorf("unknown action type '%s'", actionType)
	}

	if err := action.Validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// QueryRule rewrites, boosts, filters or redirects queries matching a pattern.
type QueryRule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	IndexHandle *string    `json:"index_handle"` // nil applies to every index
	SiteID      *int       `json:"site_id"`      // nil applies to every site
	Enabled     bool       `json:"enabled"`
	MatchType   MatchType  `json:"match_type"`
	MatchValue  string     `json:"match_value"`
	Action      RuleAction `json:"-"`
	Priority    int        `json:"priority"` // Higher evaluates first
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ActionType returns the type of the rule's action, "" when the action is missing.
func (r *QueryRule) ActionType() ActionType {
	if r.Action == nil {
		return ""
	}
	return r.Action.Type()
}

// Validate checks everything that must hold before a rule is stored.
func (r *QueryRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.MatchType.Valid() {
		return fmt.Errorf("invalid match type '%s'", r.MatchType)
	}
	if strings.TrimSpace(r.MatchValue) == "" {
		return fmt.Errorf("match value is required")
	}
	if r.MatchType == MatchRegex {
		if _, err := regexp.Compile("(?i)" + strings.TrimSpace(r.MatchValue)); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	}
	if r.IndexHandle != nil && strings.TrimSpace(*r.IndexHandle) == "" {
		return fmt.Errorf("index handle must be omitted or non-empty")
	}
	if r.Action == nil {
		return fmt.Errorf("rule action is required")
	}
	return r.Action.Validate()
}

type queryRuleJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	IndexHandle *string         `json:"index_handle"`
	SiteID      *int            `json:"site_id"`
	Enabled     bool            `json:"enabled"`
	MatchType   MatchType       `json:"match_type"`
	MatchValue  string          `json:"match_value"`
	ActionType  ActionType      `json:"action_type"`
	ActionValue json.RawMessage `json:"action_value"`
	Priority    int             `json:"priority"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MarshalJSON writes the action as an action_type/action_value pair.
func (r QueryRule) MarshalJSON() ([]byte, error) {
	out := queryRuleJSON{
		ID:          r.ID,
		Name:        r.Name,
		IndexHandle: r.IndexHandle,
		SiteID:      r.SiteID,
		Enabled:     r.Enabled,
		MatchType:   r.MatchType,
		MatchValue:  r.MatchValue,
		Priority:    r.Priority,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Action != nil {
		value, err := json.Marshal(r.Action)
		if err != nil {
			return nil, err
		}
		out.ActionType = r.Action.Type()
		out.ActionValue = value
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes action_type/action_value into the typed Action.
// A payload that does not fit its action type is rejected.
func (r *QueryRule) UnmarshalJSON(data []byte) error {
	var in queryRuleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	action, err := ParseRuleAction(in.ActionType, in.ActionValue)
	if err != nil {
		return err
	}
	*r = QueryRule{
		ID:          in.ID,
		Name:        in.Name,
		IndexHandle: in.IndexHandle,
		SiteID:      in.SiteID,
		Enabled:     in.Enabled,
		MatchType:   in.MatchType,
		MatchValue:  in.MatchValue,
		Action:      action,
		Priority:    in.Priority,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
	}
	return nil
}

func strictUnmarshal(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// scalarString accepts a JSON string or number (element and category ids are
// often numeric) and returns it as a string.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected a string or number")
	}
	return n.String(), nil
}
