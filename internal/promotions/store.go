package promotions

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

// Store keeps promotions in memory and, when a data file is set, mirrors
// every change to it.
type Store struct {
	promotions   map[string]model.Promotion
	mutex        sync.RWMutex
	dataFilePath string
	lastCreated  time.Time
}

// NewMemoryStore creates an in-memory promotion store
func NewMemoryStore() *Store {
	return &Store{promotions: make(map[string]model.Promotion)}
}

// NewFileStore creates a promotion store persisted to <dataDir>/promotions.json
func NewFileStore(dataDir string) (*Store, error) {
	store := &Store{
		promotions:   make(map[string]model.Promotion),
		dataFilePath: filepath.Join(dataDir, "promotions.json"),
	}
	if err := store.loadData(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load promotions data: %w", err)
	}
	return store, nil
}

// GetPromotion retrieves a promotion by ID
func (s *Store) GetPromotion(id string) (*model.Promotion, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, exists := s.promotions[id]
	if !exists {
		return nil, errors.NewPromotionNotFoundError(id)
	}
	return &p, nil
}

// CreatePromotion validates and stores a new promotion
func (s *Store) CreatePromotion(p model.Promotion) (*model.Promotion, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.NewValidationError("promotion", err.Error())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if _, exists := s.promotions[p.ID]; exists {
		return nil, errors.NewValidationError("id", fmt.Sprintf("promotion with ID %s already exists", p.ID))
	}

	now := time.Now()
	if !now.After(s.lastCreated) {
		now = s.lastCreated.Add(time.Nanosecond)
	}
	s.lastCreated = now
	p.CreatedAt = now
	p.UpdatedAt = now

	s.promotions[p.ID] = p
	if err := s.saveData(); err != nil {
		delete(s.promotions, p.ID)
		return nil, fmt.Errorf("failed to persist promotion: %w", err)
	}
	return &p, nil
}

// UpdatePromotion replaces an existing promotion and returns the new and previous versions
func (s *Store) UpdatePromotion(p model.Promotion) (*model.Promotion, *model.Promotion, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, errors.NewValidationError("promotion", err.Error())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, exists := s.promotions[p.ID]
	if !exists {
		return nil, nil, errors.NewPromotionNotFoundError(p.ID)
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	s.promotions[p.ID] = p

	if err := s.saveData(); err != nil {
		s.promotions[p.ID] = existing
		return nil, nil, fmt.Errorf("failed to persist promotion update: %w", err)
	}
	return &p, &existing, nil
}

// DeletePromotion removes a promotion and returns it
func (s *Store) DeletePromotion(id string) (*model.Promotion, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	p, exists := s.promotions[id]
	if !exists {
		return nil, errors.NewPromotionNotFoundError(id)
	}

	delete(s.promotions, id)
	if err := s.saveData(); err != nil {
		s.promotions[id] = p
		return nil, fmt.Errorf("failed to persist promotion deletion: %w", err)
	}
	return &p, nil
}

// ListPromotions returns every promotion ordered by creation time, then ID.
func (s *Store) ListPromotions() ([]*model.Promotion, error) {
	return s.FilterPromotions("")
}

// FilterPromotions lists promotions applying to indexHandle, global ones included.
func (s *Store) FilterPromotions(indexHandle string) ([]*model.Promotion, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*model.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		if indexHandle != "" && p.IndexHandle != nil && *p.IndexHandle != indexHandle {
			continue
		}
		promotion := p
		out = append(out, &promotion)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) loadData() error {
	data, err := os.ReadFile(s.dataFilePath)
	if err != nil {
		return err
	}

	var list []model.Promotion
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse promotions data: %w", err)
	}

	s.promotions = make(map[string]model.Promotion, len(list))
	for _, p := range list {
		s.promotions[p.ID] = p
		if p.CreatedAt.After(s.lastCreated) {
			s.lastCreated = p.CreatedAt
		}
	}
	return nil
}

func (s *Store) saveData() error {
	if s.dataFilePath == "" {
		return nil
	}

	list := make([]model.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal promotions data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.dataFilePath), 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := s.dataFilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write promotions data: %w", err)
	}
	return os.Rename(tmp, s.dataFilePath)
}
