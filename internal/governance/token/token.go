// Package token is the governance token: checkpointed balances that give
// voting power as of any past instant.
//
// Every balance change appends a checkpoint instead of overwriting, so
// VotesAt(holder, t) reads the last checkpoint at or before t and later
// transfers can never change the weight of a proposal already snapshotted.
package token

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

// Store persists balance and supply checkpoints. Reads at an instant with no
// checkpoint return 0.
type Store interface {
	AppendBalance(ctx context.Context, holder domain.Address, at time.Time, balance int64) error
	BalanceAt(ctx context.Context, holder domain.Address, at time.Time) (int64, error)
	AppendSupply(ctx context.Context, at time.Time, supply int64) error
	SupplyAt(ctx context.Context, at time.Time) (int64, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Ledger struct {
	store  Store
	runner tx.Runner
	events AuditPublisher
	logger *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func New(store Store, runner tx.Runner, events AuditPublisher, opts ...Option) *Ledger {
	l := &Ledger{store: store, runner: runner, events: events, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Mint allocates amount new tokens to holder. It is a genesis operation and
// carries no caller check.
func (l *Ledger) Mint(ctx context.Context, holder domain.Address, amount int64) error {
	return l.runner.Run(ctx, "token.mint", func(ctx context.Context) error {
		if holder.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "holder is required")
		}
		if err := domain.ValidateAmount(amount); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		supply, err := l.store.SupplyAt(ctx, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read supply")
		}
		if supply > domain.MaxAmount-amount {
			return dErrors.New(dErrors.CodeValidation, "mint would overflow total supply")
		}
		balance, err := l.store.BalanceAt(ctx, holder, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		if err := l.store.AppendSupply(ctx, now, supply+amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write supply checkpoint")
		}
		if err := l.store.AppendBalance(ctx, holder, now, balance+amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write balance checkpoint")
		}
		return l.events.Emit(ctx, audit.New(audit.EventVotingPowerAssigned, "", holder.String()).
			WithAmount(amount).
			With("balance", strconv.FormatInt(balance+amount, 10)))
	})
}

// Transfer moves amount from caller to recipient.
func (l *Ledger) Transfer(ctx context.Context, caller, to domain.Address, amount int64) error {
	return l.runner.Run(ctx, "token.transfer", func(ctx context.Context) error {
		if caller.IsNil() || to.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "sender and recipient are required")
		}
		if caller == to {
			return dErrors.New(dErrors.CodeValidation, "cannot transfer to self")
		}
		if err := domain.ValidateAmount(amount); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		from, err := l.store.BalanceAt(ctx, caller, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		if from < amount {
			return dErrors.Newf(dErrors.CodeInsufficientBalance, "balance %d is below %d", from, amount)
		}
		dest, err := l.store.BalanceAt(ctx, to, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		if err := l.store.AppendBalance(ctx, caller, now, from-amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write balance checkpoint")
		}
		if err := l.store.AppendBalance(ctx, to, now, dest+amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write balance checkpoint")
		}
		if err := l.events.Emit(ctx, audit.New(audit.EventVotingPowerAssigned, caller, to.String()).
			WithAmount(amount).
			With("from", caller.String())); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transfer")
		}
		l.logger.InfoContext(ctx, "governance tokens transferred", "from", caller, "to", to, "amount", amount)
		return nil
	})
}

// BalanceOf returns holder's current balance.
func (l *Ledger) BalanceOf(ctx context.Context, holder domain.Address) (int64, error) {
	return l.VotesAt(ctx, holder, requestcontext.Now(ctx))
}

// VotesAt returns holder's voting power as of at.
func (l *Ledger) VotesAt(ctx context.Context, holder domain.Address, at time.Time) (int64, error) {
	var votes int64
	err := l.runner.Run(ctx, "token.votes_at", func(ctx context.Context) error {
		var err error
		votes, err = l.store.BalanceAt(ctx, holder, at)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		return nil
	})
	return votes, err
}

// TotalSupplyAt returns the supply as of at.
func (l *Ledger) TotalSupplyAt(ctx context.Context, at time.Time) (int64, error) {
	var supply int64
	err := l.runner.Run(ctx, "token.supply_at", func(ctx context.Context) error {
		var err error
		supply, err = l.store.SupplyAt(ctx, at)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read supply")
		}
		return nil
	})
	return supply, err
}
