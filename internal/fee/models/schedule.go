package models

import (
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// Schedule is the platform fee skimmed from every donation.
//
// Invariants:
//   - 0 ≤ FeeBps ≤ 10000
//   - Recipient is non-empty
type Schedule struct {
	FeeBps    int64          `json:"fee_bps"`
	Recipient domain.Address `json:"fee_recipient"`
	UpdatedAt time.Time      `json:"updated_at"`
	UpdatedBy domain.Address `json:"updated_by,omitempty"`
}

func (s Schedule) Validate() error {
	if err := domain.ValidateBps(s.FeeBps); err != nil {
		return err
	}
	if s.Recipient.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "fee recipient is required")
	}
	return nil
}

// Fee returns the floor of amount × FeeBps / 10000.
func (s Schedule) Fee(amount int64) int64 {
	return domain.ApplyBps(amount, s.FeeBps)
}
