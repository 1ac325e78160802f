package master

import (
	"sort"
	"sync"

	"github.com/simp-lee/mqttbench/internal/domain"
)

// ResultStore is an in-memory domain.ConfigResultStore. Results do not
// survive a restart.
type ResultStore struct {
	mu      sync.RWMutex
	results map[int64]domain.ConfigResult
}

// NewResultStore returns an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[int64]domain.ConfigResult)}
}

// Put replaces the latest result of result.SlaveID.
func (s *ResultStore) Put(result domain.ConfigResult) {
	s.mu.Lock()
	s.results[result.SlaveID] = result
	s.mu.Unlock()
}

// Get returns a copy of the latest result of a slave.
func (s *ResultStore) Get(slaveID int64) (*domain.ConfigResult, bool) {
	s.mu.RLock()
	result, ok := s.results[slaveID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &result, true
}

// Clear forgets the result of a slave.
func (s *ResultStore) Clear(slaveID int64) {
	s.mu.Lock()
	delete(s.results, slaveID)
	s.mu.Unlock()
}

// All returns every stored result ordered by slave ID.
func (s *ResultStore) All() []domain.ConfigResult {
	s.mu.RLock()
	all := make([]domain.ConfigResult, 0, len(s.results))
	for _, r := range s.results {
		all = append(all, r)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].SlaveID < all[j].SlaveID })
	return all
}
