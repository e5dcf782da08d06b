package models

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

func TestAccount_CreditAndDebit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAccount(domain.NewNGOID(), now)

	require.NoError(t, a.CanCredit(1_000_000, 25_000))
	a.ApplyCredit(1_000_000, 25_000, now)
	assert.Equal(t, int64(975_000), a.Available())

	require.NoError(t, a.CanDebit(975_000))
	err := a.CanDebit(975_001)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientBalance))

	a.ApplyDebit(975_000, now)
	assert.Zero(t, a.Available(), "releasing the full net leaves exactly zero")
	assert.NoError(t, a.CheckInvariant())
}

func TestAccount_InvariantViolations(t *testing.T) {
	t.Run("halted account refuses everything", func(t *testing.T) {
		a := &Account{Halted: true}
		assert.True(t, dErrors.HasCode(a.CanCredit(10, 0), dErrors.CodeInvariantViolation))
		assert.True(t, dErrors.HasCode(a.CanDebit(1), dErrors.CodeInvariantViolation))
	})

	t.Run("corrupt totals are detected", func(t *testing.T) {
		a := &Account{TotalReceived: 10, TotalReleased: 20}
		assert.True(t, dErrors.HasCode(a.CanDebit(1), dErrors.CodeInvariantViolation))
	})

	t.Run("overflow is refused", func(t *testing.T) {
		a := &Account{TotalReceived: math.MaxInt64 - 5}
		assert.True(t, dErrors.HasCode(a.CanCredit(10, 0), dErrors.CodeInvariantViolation))
	})

	t.Run("fee larger than gross", func(t *testing.T) {
		a := &Account{}
		assert.True(t, dErrors.HasCode(a.CanCredit(10, 11), dErrors.CodeInvariantViolation))
	})
}

func TestNormalizeMemo(t *testing.T) {
	memo, err := NormalizeMemo("  for the well  ")
	require.NoError(t, err)
	assert.Equal(t, "for the well", memo)

	_, err = NormalizeMemo(string(make([]rune, 281)))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
