// Package timelock holds governance decisions for a minimum delay before they
// take effect. Nothing waits: an operation carries an eta, and Execute simply
// refuses to run it early.
package timelock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	accessmodels "impactledger/internal/access/models"
	modulemodels "impactledger/internal/modules/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, op *Operation) error
	Update(ctx context.Context, op *Operation) error
	Get(ctx context.Context, hash string) (*Operation, error)
}

type RoleChecker interface {
	HasRole(ctx context.Context, role accessmodels.Role, who domain.Address) (bool, error)
}

// DelaySource supplies the minimum delay currently in force.
type DelaySource interface {
	MinDelay(ctx context.Context) (time.Duration, error)
}

// DelayFunc adapts a function to DelaySource.
type DelayFunc func(ctx context.Context) (time.Duration, error)

func (f DelayFunc) MinDelay(ctx context.Context) (time.Duration, error) { return f(ctx) }

type ModuleResolver interface {
	Address(ctx context.Context, name, iface string) (domain.Address, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Calls performs an operation's effects acting as self, the Timelock's own
// registered address.
type Calls func(ctx context.Context, self domain.Address) error

type Service struct {
	store   Store
	roles   RoleChecker
	delay   DelaySource
	modules ModuleResolver
	runner  tx.Runner
	events  AuditPublisher
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, roles RoleChecker, delay DelaySource, modules ModuleResolver, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		roles:   roles,
		delay:   delay,
		modules: modules,
		runner:  runner,
		events:  events,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records hash for execution at eta. Caller must hold PROPOSER and
// eta must respect the minimum delay.
func (s *Service) Schedule(ctx context.Context, caller domain.Address, hash string, proposalID domain.ProposalID, eta time.Time) error {
	return s.runner.Run(ctx, "timelock.schedule", func(ctx context.Context) error {
		if err := s.require(ctx, caller, accessmodels.RoleProposer); err != nil {
			return err
		}
		if hash == "" {
			return dErrors.New(dErrors.CodeValidation, "operation hash is required")
		}
		minDelay, err := s.delay.MinDelay(ctx)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if earliest := now.Add(minDelay); eta.Before(earliest) {
			return dErrors.Newf(dErrors.CodeValidation, "eta %s is before the minimum delay ends at %s",
				eta.Format(time.RFC3339), earliest.Format(time.RFC3339))
		}

		op := &Operation{
			Hash:        hash,
			ProposalID:  proposalID,
			Eta:         eta,
			Status:      StatusScheduled,
			ScheduledBy: caller,
			ScheduledAt: now,
		}
		if err := s.store.Create(ctx, op); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "operation %s already scheduled", hash)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to schedule operation")
		}
		if err := s.events.Emit(ctx, audit.New(audit.EventTimelockScheduled, caller, hash).
			With("proposal_id", proposalID.String()).
			With("eta", eta.UTC().Format(time.RFC3339))); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record schedule")
		}
		s.logger.InfoContext(ctx, "timelock operation scheduled", "op_hash", hash, "eta", eta)
		return nil
	})
}

// Execute runs calls for hash once its eta has passed. Before that it fails
// with CodeTimelockNotReady and the operation stays scheduled.
func (s *Service) Execute(ctx context.Context, caller domain.Address, hash string, calls Calls) error {
	return s.runner.Run(ctx, "timelock.execute", func(ctx context.Context) error {
		if err := s.require(ctx, caller, accessmodels.RoleExecutor); err != nil {
			return err
		}
		op, err := s.find(ctx, hash)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := op.CanExecute(now); err != nil {
			return err
		}
		self, err := s.modules.Address(ctx, modulemodels.NameTimelock, modulemodels.InterfaceTimelock)
		if err != nil {
			return err
		}
		if err := calls(ctx, self); err != nil {
			return err
		}
		op.ApplyExecute(now)
		if err := s.store.Update(ctx, op); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update operation")
		}
		s.logger.InfoContext(ctx, "timelock operation executed", "op_hash", hash)
		return nil
	})
}

// Cancel drops a scheduled operation. Caller must hold PROPOSER or ADMIN.
func (s *Service) Cancel(ctx context.Context, caller domain.Address, hash string) error {
	return s.runner.Run(ctx, "timelock.cancel", func(ctx context.Context) error {
		if err := s.require(ctx, caller, accessmodels.RoleProposer, accessmodels.RoleAdmin); err != nil {
			return err
		}
		op, err := s.find(ctx, hash)
		if err != nil {
			return err
		}
		if err := op.CanCancel(); err != nil {
			return err
		}
		op.ApplyCancel()
		if err := s.store.Update(ctx, op); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update operation")
		}
		return s.events.Emit(ctx, audit.New(audit.EventTimelockCanceled, caller, hash).
			With("proposal_id", op.ProposalID.String()))
	})
}

func (s *Service) Get(ctx context.Context, hash string) (*Operation, error) {
	var op *Operation
	err := s.runner.Run(ctx, "timelock.get", func(ctx context.Context) error {
		var err error
		op, err = s.find(ctx, hash)
		return err
	})
	return op, err
}

func (s *Service) require(ctx context.Context, caller domain.Address, roles ...accessmodels.Role) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
	}
	for _, role := range roles {
		ok, err := s.roles.HasRole(ctx, role, caller)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeForbidden, "caller lacks role %s", roles[0])
}

func (s *Service) find(ctx context.Context, hash string) (*Operation, error) {
	op, err := s.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "operation %s not found", hash)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read operation")
	}
	return op, nil
}
