package models

import (
	"math"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// Account is the escrow held for one NGO.
//
// Invariants:
//   - Available() = TotalReceived − TotalReleased − TotalFees ≥ 0
//   - every total is non-negative and only grows
//   - a Halted account accepts no credit or debit
type Account struct {
	NGOID         domain.NGOID `json:"ngo_id"`
	TotalReceived int64        `json:"total_received"`
	TotalReleased int64        `json:"total_released"`
	TotalFees     int64        `json:"total_fees_charged"`
	Halted        bool         `json:"halted"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func NewAccount(ngoID domain.NGOID, now time.Time) *Account {
	return &Account{NGOID: ngoID, CreatedAt: now, UpdatedAt: now}
}

// Available is the balance releasable to the NGO.
func (a *Account) Available() int64 {
	return a.TotalReceived - a.TotalReleased - a.TotalFees
}

// CheckInvariant reports a broken balance equation as an invariant violation.
func (a *Account) CheckInvariant() error {
	if a.TotalReceived < 0 || a.TotalReleased < 0 || a.TotalFees < 0 {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "escrow %s has a negative total", a.NGOID)
	}
	if a.Available() < 0 {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "escrow %s balance is negative", a.NGOID)
	}
	return nil
}

func (a *Account) checkOpen() error {
	if a.Halted {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "escrow %s is halted", a.NGOID)
	}
	return a.CheckInvariant()
}

// CanCredit checks a donation of gross with fee can be absorbed.
func (a *Account) CanCredit(gross, fee int64) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if fee < 0 || fee > gross {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "fee %d outside [0, %d]", fee, gross)
	}
	if a.TotalReceived > math.MaxInt64-gross {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "escrow %s total received would overflow", a.NGOID)
	}
	return nil
}

func (a *Account) ApplyCredit(gross, fee int64, now time.Time) {
	a.TotalReceived += gross
	a.TotalFees += fee
	a.UpdatedAt = now
}

// CanDebit checks amount can leave escrow.
func (a *Account) CanDebit(amount int64) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if amount > a.Available() {
		return dErrors.Newf(dErrors.CodeInsufficientBalance,
			"escrow %s holds %d, cannot release %d", a.NGOID, a.Available(), amount)
	}
	return nil
}

func (a *Account) ApplyDebit(amount int64, now time.Time) {
	a.TotalReleased += amount
	a.UpdatedAt = now
}
