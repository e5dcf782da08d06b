package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impactledger/internal/governance/token"
	"impactledger/internal/governance/token/store"
	"impactledger/internal/ledger"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/audit/publisher"
	auditmemory "impactledger/pkg/platform/audit/store/memory"
	"impactledger/pkg/requestcontext"
)

func TestLedger_Checkpoints(t *testing.T) {
	events := auditmemory.NewInMemoryStore()
	l := token.New(store.NewInMemory(), ledger.NewRunner(ledger.NewMemoryTx()), publisher.New(events))

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)
	at := func(t time.Time) context.Context { return requestcontext.WithTime(context.Background(), t) }

	require.NoError(t, l.Mint(at(t0), "0xalice", 600))
	require.NoError(t, l.Mint(at(t0), "0xbob", 400))
	require.NoError(t, l.Transfer(at(t1), "0xalice", "0xbob", 100))
	require.NoError(t, l.Mint(at(t2), "0xcarol", 1000))

	tests := []struct {
		name   string
		holder string
		at     time.Time
		want   int64
	}{
		{"before genesis", "0xalice", t0.Add(-time.Second), 0},
		{"alice at genesis", "0xalice", t0, 600},
		{"alice between", "0xalice", t0.Add(30 * time.Minute), 600},
		{"alice after transfer", "0xalice", t1, 500},
		{"bob after transfer", "0xbob", t2, 500},
		{"carol before mint", "0xcarol", t1, 0},
		{"carol after mint", "0xcarol", t2, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.VotesAt(context.Background(), addr(tt.holder), tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	supply, err := l.TotalSupplyAt(context.Background(), t1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), supply)
	supply, err = l.TotalSupplyAt(context.Background(), t2)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), supply)

	assert.Len(t, events.ListByAction(context.Background(), audit.EventVotingPowerAssigned), 4)
}

func TestLedger_TransferRejections(t *testing.T) {
	l := token.New(store.NewInMemory(), ledger.NewRunner(ledger.NewMemoryTx()), publisher.New(auditmemory.NewInMemoryStore()))
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, l.Mint(ctx, "0xalice", 10))

	err := l.Transfer(ctx, "0xalice", "0xbob", 11)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBalance))

	err = l.Transfer(ctx, "0xalice", "0xalice", 1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = l.Mint(ctx, "", 5)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	balance, err := l.BalanceOf(ctx, "0xalice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance, "failed transfers leave no checkpoint")
}

func addr(s string) domain.Address { return domain.Address(s) }
