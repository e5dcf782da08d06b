package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"impactledger/internal/payout/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type InMemory struct {
	mu        sync.RWMutex
	seq       int64
	transfers map[domain.TransferID]*entry
}

type entry struct {
	seq int64
	t   models.Transfer
}

func NewInMemory() *InMemory {
	return &InMemory{transfers: make(map[domain.TransferID]*entry)}
}

func (s *InMemory) Create(ctx context.Context, t *models.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transfers[t.ID]; ok {
		return sentinel.ErrConflict
	}
	s.seq++
	s.transfers[t.ID] = &entry{seq: s.seq, t: *t}
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.transfers, t.ID)
	})
	return nil
}

func (s *InMemory) Claim(ctx context.Context, limit int, at time.Time) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]*entry, 0)
	for _, e := range s.transfers {
		if e.t.Status == models.StatusPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]models.Transfer, 0, len(pending))
	for _, e := range pending {
		prev := e.t
		e.t.Status = models.StatusDispatching
		e.t.Attempts++
		e.t.UpdatedAt = at
		out = append(out, e.t)
		claimed := e
		tx.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			claimed.t = prev
		})
	}
	return out, nil
}

func (s *InMemory) Complete(ctx context.Context, id domain.TransferID, status models.Status, externalRef, lastError string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.transfers[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.t.Status != models.StatusDispatching {
		return sentinel.ErrInvalidState
	}
	prev := e.t
	e.t.Status = status
	e.t.ExternalRef = externalRef
	e.t.LastError = lastError
	e.t.UpdatedAt = at
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e.t = prev
	})
	return nil
}

func (s *InMemory) ExpireLeases(ctx context.Context, cutoff time.Time, lastError string, at time.Time) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := make([]*entry, 0)
	for _, e := range s.transfers {
		if e.t.Status == models.StatusDispatching && e.t.UpdatedAt.Before(cutoff) {
			stale = append(stale, e)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].seq < stale[j].seq })

	out := make([]models.Transfer, 0, len(stale))
	for _, e := range stale {
		prev := e.t
		e.t.Status = models.StatusFailed
		e.t.LastError = lastError
		e.t.UpdatedAt = at
		out = append(out, e.t)
		expired := e
		tx.OnRollback(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			expired.t = prev
		})
	}
	return out, nil
}

func (s *InMemory) ListByNGO(_ context.Context, ngoID domain.NGOID) ([]models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*entry, 0)
	for _, e := range s.transfers {
		if e.t.NGOID == ngoID {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]models.Transfer, len(matched))
	for i, e := range matched {
		out[i] = e.t
	}
	return out, nil
}
