package store

import (
	"context"
	"sync"

	"impactledger/internal/governance/timelock"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
)

type InMemory struct {
	mu  sync.RWMutex
	ops map[string]timelock.Operation
}

func NewInMemory() *InMemory {
	return &InMemory{ops: make(map[string]timelock.Operation)}
}

func (s *InMemory) Create(ctx context.Context, op *timelock.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.Hash]; ok {
		return sentinel.ErrConflict
	}
	s.ops[op.Hash] = *op
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.ops, op.Hash)
	})
	return nil
}

func (s *InMemory) Update(ctx context.Context, op *timelock.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.ops[op.Hash]
	if !ok {
		return sentinel.ErrNotFound
	}
	s.ops[op.Hash] = *op
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.ops[prev.Hash] = prev
	})
	return nil
}

func (s *InMemory) Get(_ context.Context, hash string) (*timelock.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &op, nil
}
