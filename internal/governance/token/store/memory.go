package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"impactledger/pkg/domain"
	"impactledger/pkg/platform/tx"
)

type checkpoint struct {
	at    time.Time
	value int64
}

// history is ordered by time; equal instants keep append order.
type history []checkpoint

func (h history) at(t time.Time) int64 {
	i := sort.Search(len(h), func(i int) bool { return h[i].at.After(t) })
	if i == 0 {
		return 0
	}
	return h[i-1].value
}

type InMemory struct {
	mu       sync.RWMutex
	balances map[domain.Address]history
	supply   history
}

func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[domain.Address]history)}
}

func (s *InMemory) AppendBalance(ctx context.Context, holder domain.Address, at time.Time, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[holder] = append(s.balances[holder], checkpoint{at: at, value: balance})
	n := len(s.balances[holder])
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.balances[holder] = s.balances[holder][:n-1]
	})
	return nil
}

func (s *InMemory) BalanceAt(_ context.Context, holder domain.Address, at time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[holder].at(at), nil
}

func (s *InMemory) AppendSupply(ctx context.Context, at time.Time, supply int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supply = append(s.supply, checkpoint{at: at, value: supply})
	n := len(s.supply)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.supply = s.supply[:n-1]
	})
	return nil
}

func (s *InMemory) SupplyAt(_ context.Context, at time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.supply.at(at), nil
}
