// Package oracle converts donation amounts into the ledger base unit using an
// external rate source. The ledger treats the source as a synchronous read that
// either returns a rate or fails the whole operation.
package oracle

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// RateSource returns how many base units one unit of currency is worth.
type RateSource interface {
	Rate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error)
}

// Metrics records lookup outcomes per source.
type Metrics interface {
	IncrementOracleLookup(source, outcome string)
}

// Converter normalizes amounts to the base currency.
type Converter struct {
	base    domain.Currency
	source  RateSource
	logger  *slog.Logger
	metrics Metrics
}

type Option func(*Converter)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Converter) { c.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(c *Converter) { c.metrics = m }
}

func NewConverter(base domain.Currency, source RateSource, opts ...Option) *Converter {
	c := &Converter{base: base, source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Base returns the ledger base currency.
func (c *Converter) Base() domain.Currency { return c.base }

// ToBase returns floor(amount × rate). The base currency converts 1:1 without
// consulting the source.
func (c *Converter) ToBase(ctx context.Context, amount int64, currency domain.Currency) (int64, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return 0, err
	}
	if currency == "" || currency == c.base {
		return amount, nil
	}

	rate, err := c.source.Rate(ctx, currency)
	if err != nil {
		c.observe("error")
		c.logger.WarnContext(ctx, "rate lookup failed", "currency", currency, "error", err)
		if dErrors.HasCode(err, dErrors.CodeExternalDependency) {
			return 0, err
		}
		return 0, dErrors.Wrap(err, dErrors.CodeExternalDependency, "rate source unavailable for "+currency.String())
	}
	if !rate.IsPositive() {
		c.observe("invalid")
		return 0, dErrors.Newf(dErrors.CodeExternalDependency, "rate source returned non-positive rate for %s", currency)
	}
	c.observe("ok")

	converted := decimal.NewFromInt(amount).Mul(rate).Floor()
	if converted.GreaterThan(decimal.NewFromInt(domain.MaxAmount)) {
		return 0, dErrors.New(dErrors.CodeValidation, "converted amount exceeds ledger maximum")
	}
	out := converted.IntPart()
	if out <= 0 {
		return 0, dErrors.Newf(dErrors.CodeValidation, "%d %s is worth less than one base unit", amount, currency)
	}
	return out, nil
}

func (c *Converter) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.IncrementOracleLookup("converter", outcome)
	}
}
