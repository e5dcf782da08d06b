package oracle

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/platform/circuit"
)

// Guarded fails fast while the breaker is open instead of waiting on a source
// that keeps failing.
type Guarded struct {
	next    RateSource
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next RateSource, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Rate(ctx context.Context, currency domain.Currency) (decimal.Decimal, error) {
	if !g.breaker.Allow() {
		return decimal.Zero, dErrors.Newf(dErrors.CodeExternalDependency, "rate source %s circuit open", g.breaker.Name())
	}
	rate, err := g.next.Rate(ctx, currency)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "rate source circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return decimal.Zero, err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "rate source circuit closed", "breaker", g.breaker.Name())
	}
	return rate, nil
}
