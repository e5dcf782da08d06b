package store

import (
	"context"
	"sort"
	"sync"

	"impactledger/internal/ngo/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type InMemory struct {
	mu       sync.RWMutex
	profiles map[domain.NGOID]models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{profiles: make(map[domain.NGOID]models.Profile)}
}

func (s *InMemory) Create(ctx context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.profiles {
		if existing.Principal == p.Principal && existing.IsLive() {
			return sentinel.ErrConflict
		}
	}
	s.profiles[p.ID] = *p
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.profiles, p.ID)
	})
	return nil
}

func (s *InMemory) Update(ctx context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.profiles[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.profiles[p.ID] = *p
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.profiles[p.ID] = prev
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.NGOID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemory) FindLiveByPrincipal(_ context.Context, principal domain.Address) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Principal == principal && p.IsLive() {
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) List(_ context.Context) ([]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}
