package ledger

import (
	"context"
	"sync"
)

// MemoryTx serializes operations over in-memory stores with one mutex. Rollback
// is performed by the unit's compensations, not by MemoryTx.
type MemoryTx struct {
	mu sync.Mutex
}

func NewMemoryTx() *MemoryTx {
	return &MemoryTx{}
}

func (m *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}
