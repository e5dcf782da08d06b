package store

import (
	"context"
	"sync"

	"impactledger/internal/fee/models"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type InMemory struct {
	mu       sync.RWMutex
	schedule *models.Schedule
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Get(_ context.Context) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.schedule == nil {
		return nil, sentinel.ErrNotFound
	}
	out := *s.schedule
	return &out, nil
}

func (s *InMemory) Put(ctx context.Context, sched *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.schedule
	next := *sched
	s.schedule = &next
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.schedule = prev
	})
	return nil
}
