package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/platform/tx"
)

type recordingMetrics struct {
	mu    sync.Mutex
	codes []string
}

func (m *recordingMetrics) ObserveOperation(_, code string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
}

func TestRunner_RollsBackOnError(t *testing.T) {
	metrics := &recordingMetrics{}
	r := NewRunner(NewMemoryTx(), WithMetrics(metrics))
	balance := 10

	err := r.Run(context.Background(), "debit", func(ctx context.Context) error {
		old := balance
		balance -= 4
		tx.OnRollback(ctx, func() { balance = old })
		return dErrors.New(dErrors.CodeInsufficientBalance, "nope")
	})

	require.Error(t, err)
	assert.Equal(t, 10, balance)
	assert.Equal(t, []string{"insufficient_balance"}, metrics.codes)
}

func TestRunner_NestedCallJoinsOuterUnit(t *testing.T) {
	r := NewRunner(NewMemoryTx())
	var writes []string

	err := r.Run(context.Background(), "release", func(ctx context.Context) error {
		writes = append(writes, "milestone")
		tx.OnRollback(ctx, func() { writes = writes[:len(writes)-1] })

		// joins without deadlocking on the mutex
		require.NoError(t, r.Run(ctx, "debit", func(ctx context.Context) error {
			writes = append(writes, "escrow")
			tx.OnRollback(ctx, func() { writes = writes[:len(writes)-1] })
			return nil
		}))
		return errors.New("transfer row failed")
	})

	require.Error(t, err)
	assert.Empty(t, writes, "inner writes roll back with the outer unit")
}

func TestRunner_HooksRunAfterLockReleased(t *testing.T) {
	r := NewRunner(NewMemoryTx())
	var order []string

	err := r.Run(context.Background(), "donate", func(ctx context.Context) error {
		tx.AfterCommit(ctx, func(ctx context.Context) {
			// a hook re-entering the ledger starts a fresh operation
			err := r.Run(ctx, "callback", func(context.Context) error {
				order = append(order, "reentrant")
				return nil
			})
			assert.NoError(t, err)
		})
		order = append(order, "write")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"write", "reentrant"}, order)
}

func TestRunner_CancelledContext(t *testing.T) {
	r := NewRunner(NewMemoryTx())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, "donate", func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestRunner_RollsBackOnPanic(t *testing.T) {
	r := NewRunner(NewMemoryTx())
	balance := 5

	assert.Panics(t, func() {
		_ = r.Run(context.Background(), "boom", func(ctx context.Context) error {
			balance = 0
			tx.OnRollback(ctx, func() { balance = 5 })
			panic("boom")
		})
	})
	assert.Equal(t, 5, balance)

	// mutex was released by the deferred unlock
	require.NoError(t, r.Run(context.Background(), "after", func(context.Context) error { return nil }))
}

func TestRunner_RollbackHooksSurviveFailure(t *testing.T) {
	r := NewRunner(NewMemoryTx())
	halted := false

	err := r.Run(context.Background(), "debit", func(ctx context.Context) error {
		tx.AfterRollback(ctx, func(ctx context.Context) {
			// runs in its own unit after the failed one released the lock
			require.NoError(t, r.Run(ctx, "halt", func(context.Context) error {
				halted = true
				return nil
			}))
		})
		return dErrors.New(dErrors.CodeInvariantViolation, "balance below zero")
	})

	require.Error(t, err)
	assert.True(t, halted)
}
