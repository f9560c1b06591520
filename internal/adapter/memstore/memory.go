package memstore

import (
	"sync"

	"ctxasm/internal/domain"
)

// MemoryStore is an IndexStore that never touches disk. It counts saves so
// callers can check whether a build persisted anything.
type MemoryStore struct {
	mu      sync.RWMutex
	index   domain.Index
	saves   int
	loadErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: domain.Index{}}
}

// NewMemoryStoreWith seeds the store with idx.
func NewMemoryStoreWith(idx domain.Index) *MemoryStore {
	return &MemoryStore{index: idx.Clone()}
}

func (s *MemoryStore) Load() (domain.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.index.Clone(), nil
}

func (s *MemoryStore) Save(idx domain.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx.Clone()
	s.loadErr = nil
	s.saves++
	return nil
}

// FailLoad makes Load return err until the next Save.
func (s *MemoryStore) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// Saves returns how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
