package store

import (
	"context"
	"sync"

	"impactledger/internal/donation/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

// InMemory keeps escrow accounts and an append-only donation log.
type InMemory struct {
	mu        sync.RWMutex
	accounts  map[domain.NGOID]models.Account
	donations []models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[domain.NGOID]models.Account)}
}

func (s *InMemory) FindAccount(_ context.Context, ngoID domain.NGOID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[ngoID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s *InMemory) SaveAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.accounts[a.NGOID]
	s.accounts[a.NGOID] = *a
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existed {
			s.accounts[a.NGOID] = prev
		} else {
			delete(s.accounts, a.NGOID)
		}
	})
	return nil
}

func (s *InMemory) AppendDonation(ctx context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.donations = append(s.donations, *r)
	n := len(s.donations)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.donations = s.donations[:n-1]
	})
	return nil
}

func (s *InMemory) ListDonations(_ context.Context, ngoID domain.NGOID) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, r := range s.donations {
		if r.NGOID == ngoID {
			out = append(out, r)
		}
	}
	return out, nil
}
