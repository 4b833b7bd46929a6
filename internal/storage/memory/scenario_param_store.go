package memory

import (
	"context"
	"sort"
	"sync"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/storage"
)

// ScenarioParamStore is an in-memory implementation of
// storage.ScenarioParamStore, seeded from the predefined historical
// scenarios.
type ScenarioParamStore struct {
	mu   sync.RWMutex
	data map[string]domain.HistoricalScenario
}

// NewScenarioParamStore creates a store seeded with
// domain.HistoricalScenarios.
func NewScenarioParamStore() *ScenarioParamStore {
	data := make(map[string]domain.HistoricalScenario, len(domain.HistoricalScenarios))
	for _, s := range domain.HistoricalScenarios {
		data[s.Name] = s
	}
	return &ScenarioParamStore{data: data}
}

// Compile-time interface check.
var _ storage.ScenarioParamStore = (*ScenarioParamStore)(nil)

// GetByName retrieves a preset. Returns ErrNotFound if absent.
func (s *ScenarioParamStore) GetByName(_ context.Context, name string) (*domain.HistoricalScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	preset, exists := s.data[name]
	if !exists {
		return nil, storage.ErrNotFound
	}
	out := preset
	return &out, nil
}

// List retrieves all presets ordered by name.
func (s *ScenarioParamStore) List(_ context.Context) ([]*domain.HistoricalScenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*domain.HistoricalScenario, 0, len(names))
	for _, name := range names {
		preset := s.data[name]
		out = append(out, &preset)
	}
	return out, nil
}
