package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gcbaptista/go-search-gateway/internal/errors"
	"github.com/gcbaptista/go-search-gateway/model"
)

// Store keeps query rules in memory and, when a data file is set, mirrors
// every change to it. Rules are validated before they are stored.
type Store struct {
	rules        map[string]model.QueryRule
	mutex        sync.RWMutex
	dataFilePath string // empty keeps the store in memory only
	lastCreated  time.Time
}

// NewMemoryStore creates an in-memory rule store
func NewMemoryStore() *Store {
	return &Store{rules: make(map[string]model.QueryRule)}
}

// NewFileStore creates a rule store persisted to <dataDir>/rules.json
func NewFileStore(dataDir string) (*Store, error) {
	store := &Store{
		rules:        make(map[string]model.QueryRule),
		dataFilePath: filepath.Join(dataDir, "rules.json"),
	}
	if err := store.loadData(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load rules data: %w", err)
	}
	return store, nil
}

// GetRule retrieves a specific rule by ID
func (s *Store) GetRule(ruleID string) (*model.QueryRule, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rule, exists := s.rules[ruleID]
	if !exists {
		return nil, errors.NewRuleNotFoundError(ruleID)
	}
	return &rule, nil
}

// CreateRule validates and stores a new rule
func (s *Store) CreateRule(rule model.QueryRule) (*model.QueryRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, errors.NewValidationError("rule", err.Error())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if _, exists := s.rules[rule.ID]; exists {
		return nil, errors.NewValidationError("id", fmt.Sprintf("rule with ID %s already exists", rule.ID))
	}

	now := time.Now()
	// keep creation order strict so equal priorities list in insertion order
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = now
	rule.CreatedAt = now
	rule.UpdatedAt = now

	s.rules[rule.ID] = rule
	if err := s.saveData(); err != nil {
		delete(s.rules, rule.ID)
		return nil, fmt.Errorf("failed to persist rule: %w", err)
	}
	return &rule, nil
}

// UpdateRule replaces an existing rule. It returns the previous version so
// callers can invalidate both the old and the new scope.
func (s *Store) UpdateRule(rule model.QueryRule) (updated *model.QueryRule, previous *model.QueryRule, err error) {
	if err := rule.Validate(); err != nil {
		return nil, nil, errors.NewValidationError("rule", err.Error())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.rules[rule.ID]
	if !exists {
		return nil, nil, errors.NewRuleNotFoundError(rule.ID)
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	s.rules[rule.ID] = rule

	if err := s.saveData(); err != nil {
		s.rules[rule.ID] = existing
		return nil, nil, fmt.Errorf("failed to persist rule update: %w", err)
	}
	return &rule, &existing, nil
}

// DeleteRule removes a rule and returns it
func (s *Store) DeleteRule(ruleID string) (*model.QueryRule, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rule, exists := s.rules[ruleID]
	if !exists {
		return nil, errors.NewRuleNotFoundError(ruleID)
	}

	delete(s.rules, ruleID)
	if err := s.saveData(); err != nil {
		s.rules[ruleID] = rule
		return nil, fmt.Errorf("failed to persist rule deletion: %w", err)
	}
	return &rule, nil
}

// ListRules returns every rule ordered by creation time, then ID.
func (s *Store) ListRules() ([]*model.QueryRule, error) {
	return s.FilterRules("", nil)
}

// FilterRules lists rules applying to indexHandle (global rules included) and
// with the given enabled state. Empty handle and nil enabled disable the filter.
func (s *Store) FilterRules(indexHandle string, enabled *bool) ([]*model.QueryRule, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rules := make([]*model.QueryRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if indexHandle != "" && rule.IndexHandle != nil && *rule.IndexHandle != indexHandle {
			continue
		}
		if enabled != nil && rule.Enabled != *enabled {
			continue
		}
		r := rule
		rules = append(rules, &r)
	}

	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// loadData loads rules from the data file
func (s *Store) loadData() error {
	data, err := os.ReadFile(s.dataFilePath)
	if err != nil {
		return err
	}

	var rules []model.QueryRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("failed to parse rules data: %w", err)
	}

	s.rules = make(map[string]model.QueryRule, len(rules))
	for _, rule := range rules {
		s.rules[rule.ID] = rule
		if rule.CreatedAt.After(s.lastCreated) {
			s.lastCreated = rule.CreatedAt
		}
	}
	return nil
}

// saveData writes every rule to the data file; a no-op for memory stores
func (s *Store) saveData() error {
	if s.dataFilePath == "" {
		return nil
	}

	rules := make([]model.QueryRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rules data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.dataFilePath), 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := s.dataFilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write rules data: %w", err)
	}
	return os.Rename(tmp, s.dataFilePath)
}
