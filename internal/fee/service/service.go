// Package service implements the FeeManager. The schedule is readable by
// anyone; only the Timelock module, resolved through the registry, may change it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"impactledger/internal/fee/models"
	modulemodels "impactledger/internal/modules/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context) (*models.Schedule, error)
	Put(ctx context.Context, s *models.Schedule) error
}

// ModuleResolver resolves the address a module currently acts as.
type ModuleResolver interface {
	Address(ctx context.Context, name, iface string) (domain.Address, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	modules ModuleResolver
	runner  tx.Runner
	events  AuditPublisher
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, modules ModuleResolver, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{store: store, modules: modules, runner: runner, events: events, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentSchedule returns the schedule in force.
func (s *Service) CurrentSchedule(ctx context.Context) (models.Schedule, error) {
	var out models.Schedule
	err := s.runner.Run(ctx, "fee.current", func(ctx context.Context) error {
		sched, err := s.store.Get(ctx)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "fee schedule is not initialized")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee schedule")
		}
		out = *sched
		return nil
	})
	return out, err
}

// Initialize writes the genesis schedule. It fails once a schedule exists.
func (s *Service) Initialize(ctx context.Context, feeBps int64, recipient domain.Address) error {
	return s.runner.Run(ctx, "fee.initialize", func(ctx context.Context) error {
		if _, err := s.store.Get(ctx); err == nil {
			return dErrors.New(dErrors.CodeInvalidState, "fee schedule already initialized")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee schedule")
		}
		return s.write(ctx, "", feeBps, recipient)
	})
}

// SetSchedule replaces the schedule. The caller must be the Timelock.
func (s *Service) SetSchedule(ctx context.Context, caller domain.Address, feeBps int64, recipient domain.Address) error {
	return s.runner.Run(ctx, "fee.set_schedule", func(ctx context.Context) error {
		timelock, err := s.modules.Address(ctx, modulemodels.NameTimelock, modulemodels.InterfaceTimelock)
		if err != nil {
			return err
		}
		if caller.IsNil() || caller != timelock {
			return dErrors.New(dErrors.CodeForbidden, "fee schedule changes only through the timelock")
		}
		return s.write(ctx, caller, feeBps, recipient)
	})
}

func (s *Service) write(ctx context.Context, caller domain.Address, feeBps int64, recipient domain.Address) error {
	sched := &models.Schedule{
		FeeBps:    feeBps,
		Recipient: recipient,
		UpdatedAt: requestcontext.Now(ctx),
		UpdatedBy: caller,
	}
	if err := sched.Validate(); err != nil {
		return err
	}
	if err := s.store.Put(ctx, sched); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write fee schedule")
	}
	if err := s.events.Emit(ctx, audit.New(audit.EventFeeScheduleUpdated, caller, modulemodels.NameFeeManager).
		With("fee_bps", strconv.FormatInt(feeBps, 10)).
		With("fee_recipient", recipient.String())); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record fee schedule update")
	}
	s.logger.InfoContext(ctx, "fee schedule updated", "fee_bps", feeBps, "fee_recipient", recipient)
	return nil
}
