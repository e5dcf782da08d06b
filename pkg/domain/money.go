package domain

import (
	"math"
	"strings"

	dErrors "impactledger/pkg/domain-errors"
)

// Currency is an upper-case ISO-4217 style code ("USD", "EUR") or a token
// ticker ("USDC"). The ledger base currency is configured at genesis.
type Currency string

// ParseCurrency normalizes and validates a currency code: 3 to 8 letters or digits.
func ParseCurrency(s string) (Currency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 3 || len(s) > 8 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "currency must be 3 to 8 characters")
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "currency must be alphanumeric")
		}
	}
	return Currency(s), nil
}

func (c Currency) String() string { return string(c) }

// BasisPointsDenominator is the divisor for every basis-point rate (fees, quorum).
const BasisPointsDenominator int64 = 10_000

// MaxAmount bounds any single amount so that amount × basis points never overflows int64.
const MaxAmount int64 = math.MaxInt64 / BasisPointsDenominator

// ApplyBps returns floor(amount × bps / 10000). Callers guarantee 0 ≤ amount ≤ MaxAmount
// and 0 ≤ bps ≤ 10000, so the product fits in int64 and truncation never rounds up.
func ApplyBps(amount, bps int64) int64 {
	return amount * bps / BasisPointsDenominator
}

// ValidateAmount rejects zero, negative and oversized amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if amount > MaxAmount {
		return dErrors.New(dErrors.CodeValidation, "amount exceeds ledger maximum")
	}
	return nil
}

// ValidateBps rejects basis-point values outside [0, 10000].
func ValidateBps(bps int64) error {
	if bps < 0 || bps > BasisPointsDenominator {
		return dErrors.New(dErrors.CodeValidation, "basis points must be between 0 and 10000")
	}
	return nil
}
