package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

const maxMemoLength = 280

// Record is an append-only ledger entry for one donation. Amounts are in the
// base unit except OriginalAmount, which is in Currency.
type Record struct {
	ID             domain.DonationID `json:"id"`
	NGOID          domain.NGOID      `json:"ngo_id"`
	Donor          domain.Address    `json:"donor"`
	Currency       domain.Currency   `json:"currency"`
	OriginalAmount int64             `json:"original_amount"`
	GrossAmount    int64             `json:"gross_amount"`
	FeeAmount      int64             `json:"fee_amount"`
	NetAmount      int64             `json:"net_amount"`
	Memo           string            `json:"memo,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NormalizeMemo trims and bounds a donor memo.
func NormalizeMemo(memo string) (string, error) {
	memo = strings.TrimSpace(memo)
	if utf8.RuneCountInString(memo) > maxMemoLength {
		return "", dErrors.New(dErrors.CodeValidation, "memo must be 280 characters or less")
	}
	return memo, nil
}
