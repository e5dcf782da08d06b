package store

import (
	"context"
	"sort"
	"sync"

	"impactledger/internal/milestone/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type InMemory struct {
	mu         sync.RWMutex
	milestones map[domain.MilestoneID]models.Milestone
}

func NewInMemory() *InMemory {
	return &InMemory{milestones: make(map[domain.MilestoneID]models.Milestone)}
}

func (s *InMemory) Create(ctx context.Context, m *models.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.milestones[m.ID]; ok {
		return sentinel.ErrConflict
	}
	s.milestones[m.ID] = *m
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.milestones, m.ID)
	})
	return nil
}

func (s *InMemory) Update(ctx context.Context, m *models.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.milestones[m.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.milestones[m.ID] = *m
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.milestones[prev.ID] = prev
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.MilestoneID) (*models.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &m, nil
}

func (s *InMemory) FindByPrevious(_ context.Context, id domain.MilestoneID) (*models.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.milestones {
		if m.PreviousID != nil && *m.PreviousID == id {
			return &m, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByNGO returns ngoID's milestones, oldest first.
func (s *InMemory) ListByNGO(_ context.Context, ngoID domain.NGOID) ([]models.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Milestone
	for _, m := range s.milestones {
		if m.NGOID == ngoID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Attempt < out[j].Attempt
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
