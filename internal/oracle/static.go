package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// StaticSource serves a fixed rate table, typically from the genesis file.
type StaticSource struct {
	rates map[domain.Currency]decimal.Decimal
}

// NewStaticSource parses rates given as decimal strings keyed by currency code.
func NewStaticSource(rates map[string]string) (*StaticSource, error) {
	s := &StaticSource{rates: make(map[domain.Currency]decimal.Decimal, len(rates))}
	for code, raw := range rates {
		cur, err := domain.ParseCurrency(code)
		if err != nil {
			return nil, fmt.Errorf("rate %q: %w", code, err)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", cur, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("rate %s must be positive", cur)
		}
		s.rates[cur] = rate
	}
	return s, nil
}

func (s *StaticSource) Rate(_ context.Context, currency domain.Currency) (decimal.Decimal, error) {
	rate, ok := s.rates[currency]
	if !ok {
		return decimal.Zero, dErrors.Newf(dErrors.CodeExternalDependency, "no rate configured for %s", currency)
	}
	return rate, nil
}
