package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"impactledger/internal/access/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/tx"
)

// InMemory keeps role membership in maps. Writes inside a unit of work are
// compensated on rollback.
type InMemory struct {
	mu    sync.RWMutex
	roles map[models.Role]map[domain.Address]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{roles: make(map[models.Role]map[domain.Address]time.Time)}
}

func (s *InMemory) Has(_ context.Context, role models.Role, member domain.Address) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[role][member]
	return ok, nil
}

func (s *InMemory) Add(ctx context.Context, role models.Role, member domain.Address, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role][member]; ok {
		return false, nil
	}
	if s.roles[role] == nil {
		s.roles[role] = make(map[domain.Address]time.Time)
	}
	s.roles[role][member] = at
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.roles[role], member)
	})
	return true, nil
}

func (s *InMemory) Remove(ctx context.Context, role models.Role, member domain.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.roles[role][member]
	if !ok {
		return false, nil
	}
	delete(s.roles[role], member)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.roles[role][member] = at
	})
	return true, nil
}

func (s *InMemory) Members(_ context.Context, role models.Role) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Address, 0, len(s.roles[role]))
	for m := range s.roles[role] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
