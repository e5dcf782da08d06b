package store

import (
	"context"
	"sync"

	"impactledger/internal/modules/models"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type InMemory struct {
	mu      sync.RWMutex
	entries map[string]models.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]models.Entry)}
}

func (s *InMemory) Get(_ context.Context, name string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *InMemory) Put(ctx context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.entries[entry.Name]
	s.entries[entry.Name] = *entry
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.entries[entry.Name] = prev
		} else {
			delete(s.entries, entry.Name)
		}
	})
	return nil
}

func (s *InMemory) List(_ context.Context) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}
