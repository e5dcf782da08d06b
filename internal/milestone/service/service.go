// Package service implements the MilestoneManager: the state machine that
// gates partial releases of an NGO's escrow.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	accessmodels "impactledger/internal/access/models"
	"impactledger/internal/milestone/models"
	modulemodels "impactledger/internal/modules/models"
	modules "impactledger/internal/modules/service"
	ngomodels "impactledger/internal/ngo/models"
	"impactledger/internal/ngo/reputation"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, m *models.Milestone) error
	Update(ctx context.Context, m *models.Milestone) error
	FindByID(ctx context.Context, id domain.MilestoneID) (*models.Milestone, error)
	FindByPrevious(ctx context.Context, id domain.MilestoneID) (*models.Milestone, error)
	ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]models.Milestone, error)
}

type NGORegistry interface {
	IsVerified(ctx context.Context, id domain.NGOID) (bool, error)
	Get(ctx context.Context, id domain.NGOID) (*ngomodels.Profile, error)
}

// EscrowDebiter is the DonationManager's release path.
type EscrowDebiter interface {
	Debit(ctx context.Context, caller domain.Address, ngoID domain.NGOID, amount int64, reference string) error
}

type RoleChecker interface {
	HasRole(ctx context.Context, role accessmodels.Role, who domain.Address) (bool, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store   Store
	roles   RoleChecker
	modules modules.Locator
	runner  tx.Runner
	events  AuditPublisher
	policy  models.ResubmitPolicy
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithResubmitPolicy replaces the default policy, which never resubmits.
func WithResubmitPolicy(p models.ResubmitPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func New(store Store, roles RoleChecker, locator modules.Locator, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		roles:   roles,
		modules: locator,
		runner:  runner,
		events:  events,
		policy:  models.Never{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a pending milestone for a verified NGO. The caller must be the
// NGO's principal or hold VERIFIER.
func (s *Service) Create(ctx context.Context, caller domain.Address, d models.Draft) (domain.MilestoneID, error) {
	var id domain.MilestoneID
	err := s.runner.Run(ctx, "milestone.create", func(ctx context.Context) error {
		registry, err := s.registry(ctx)
		if err != nil {
			return err
		}
		verified, err := registry.IsVerified(ctx, d.NGOID)
		if err != nil {
			return err
		}
		if !verified {
			return dErrors.Newf(dErrors.CodeForbidden, "ngo %s is not verified", d.NGOID)
		}
		if err := s.requireSteward(ctx, registry, caller, d.NGOID); err != nil {
			return err
		}

		m, err := models.NewMilestone(domain.NewMilestoneID(), d, caller, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.Create(ctx, m); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create milestone")
		}
		if err := s.emitCreated(ctx, caller, m); err != nil {
			return err
		}
		id = m.ID
		s.logger.InfoContext(ctx, "milestone created", "milestone_id", id, "ngo_id", d.NGOID, "target", d.TargetAmount)
		return nil
	})
	return id, err
}

// Submit marks the work done and hands the milestone to its approver.
func (s *Service) Submit(ctx context.Context, caller domain.Address, id domain.MilestoneID) error {
	return s.runner.Run(ctx, "milestone.submit", func(ctx context.Context) error {
		m, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		registry, err := s.registry(ctx)
		if err != nil {
			return err
		}
		if err := s.requireSteward(ctx, registry, caller, m.NGOID); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := m.CanSubmit(now); err != nil {
			return err
		}
		m.ApplySubmit(now)
		return s.save(ctx, m, audit.New(audit.EventMilestoneSubmitted, caller, m.ID.String()))
	})
}

func (s *Service) Approve(ctx context.Context, caller domain.Address, id domain.MilestoneID) error {
	return s.runner.Run(ctx, "milestone.approve", func(ctx context.Context) error {
		m, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := m.CanDecide(caller, "approve"); err != nil {
			return err
		}
		m.ApplyApprove(requestcontext.Now(ctx))
		return s.save(ctx, m, audit.New(audit.EventMilestoneApproved, caller, m.ID.String()))
	})
}

func (s *Service) Reject(ctx context.Context, caller domain.Address, id domain.MilestoneID, reason string) error {
	return s.runner.Run(ctx, "milestone.reject", func(ctx context.Context) error {
		m, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := m.CanDecide(caller, "reject"); err != nil {
			return err
		}
		m.ApplyReject(requestcontext.Now(ctx))
		event := audit.New(audit.EventMilestoneRejected, caller, m.ID.String())
		if reason != "" {
			event = event.With("reason", reason)
		}
		return s.save(ctx, m, event)
	})
}

// Release debits the approved target from escrow, acting as this module's
// registered address. If the debit fails the milestone stays approved.
func (s *Service) Release(ctx context.Context, caller domain.Address, id domain.MilestoneID) error {
	return s.runner.Run(ctx, "milestone.release", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		m, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := m.CanRelease(); err != nil {
			return err
		}

		self, err := s.modules.Address(ctx, modulemodels.NameMilestoneManager, modulemodels.InterfaceMilestoneManager)
		if err != nil {
			return err
		}
		escrow, err := modules.Bind[EscrowDebiter](ctx, s.modules, modulemodels.NameDonationManager, modulemodels.InterfaceDonationManager)
		if err != nil {
			return err
		}
		if err := escrow.Debit(ctx, self, m.NGOID, m.TargetAmount, m.ID.String()); err != nil {
			return err
		}

		m.ApplyRelease(requestcontext.Now(ctx))
		return s.save(ctx, m, audit.New(audit.EventMilestoneReleased, caller, m.ID.String()).
			WithAmount(m.TargetAmount).
			With("ngo_id", m.NGOID.String()))
	})
}

// Resubmit applies the configured policy to a rejected milestone. A zero
// deadline keeps the rejected milestone's deadline.
func (s *Service) Resubmit(ctx context.Context, caller domain.Address, id domain.MilestoneID, deadline time.Time) (domain.MilestoneID, error) {
	var next domain.MilestoneID
	err := s.runner.Run(ctx, "milestone.resubmit", func(ctx context.Context) error {
		prev, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		registry, err := s.registry(ctx)
		if err != nil {
			return err
		}
		if err := s.requireSteward(ctx, registry, caller, prev.NGOID); err != nil {
			return err
		}
		existing, err := s.store.FindByPrevious(ctx, id)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read milestone")
		}
		if existing != nil {
			return dErrors.Newf(dErrors.CodeInvalidState, "milestone %s was already resubmitted as %s", id, existing.ID)
		}

		m, err := s.policy.Resubmit(prev, deadline, caller, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.store.Create(ctx, m); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create milestone")
		}
		if err := s.emitCreated(ctx, caller, m); err != nil {
			return err
		}
		next = m.ID
		return nil
	})
	return next, err
}

func (s *Service) Get(ctx context.Context, id domain.MilestoneID) (*models.Milestone, error) {
	var out *models.Milestone
	err := s.runner.Run(ctx, "milestone.get", func(ctx context.Context) error {
		var err error
		out, err = s.find(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]models.Milestone, error) {
	var out []models.Milestone
	err := s.runner.Run(ctx, "milestone.list", func(ctx context.Context) error {
		var err error
		out, err = s.store.ListByNGO(ctx, ngoID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list milestones")
		}
		return nil
	})
	return out, err
}

// History feeds NGO reputation with released and rejected milestone counts.
func (s *Service) History(ctx context.Context, ngoID domain.NGOID) (reputation.Inputs, error) {
	list, err := s.ListByNGO(ctx, ngoID)
	if err != nil {
		return reputation.Inputs{}, err
	}
	var in reputation.Inputs
	for _, m := range list {
		switch m.Status {
		case models.StatusReleased:
			in.MilestonesReleased++
			in.TotalReleased += m.TargetAmount
		case models.StatusRejected:
			in.MilestonesRejected++
		}
	}
	return in, nil
}

func (s *Service) registry(ctx context.Context) (NGORegistry, error) {
	return modules.Bind[NGORegistry](ctx, s.modules, modulemodels.NameNGORegistry, modulemodels.InterfaceNGORegistry)
}

// requireSteward admits the NGO's principal or any VERIFIER.
func (s *Service) requireSteward(ctx context.Context, registry NGORegistry, caller domain.Address, ngoID domain.NGOID) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
	}
	profile, err := registry.Get(ctx, ngoID)
	if err != nil {
		return err
	}
	if profile.Principal == caller {
		return nil
	}
	ok, err := s.roles.HasRole(ctx, accessmodels.RoleVerifier, caller)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeForbidden, "caller is neither the ngo principal nor a verifier")
	}
	return nil
}

func (s *Service) find(ctx context.Context, id domain.MilestoneID) (*models.Milestone, error) {
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "milestone %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read milestone")
	}
	return m, nil
}

func (s *Service) save(ctx context.Context, m *models.Milestone, event audit.Event) error {
	if err := s.store.Update(ctx, m); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update milestone")
	}
	if err := s.events.Emit(ctx, event.With("status", string(m.Status))); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record milestone event")
	}
	s.logger.InfoContext(ctx, "milestone transition", "milestone_id", m.ID, "status", m.Status)
	return nil
}

func (s *Service) emitCreated(ctx context.Context, caller domain.Address, m *models.Milestone) error {
	event := audit.New(audit.EventMilestoneCreated, caller, m.ID.String()).
		WithAmount(m.TargetAmount).
		With("ngo_id", m.NGOID.String()).
		With("approver", m.Approver.String()).
		With("attempt", strconv.Itoa(m.Attempt))
	if m.PreviousID != nil {
		event = event.With("previous_id", m.PreviousID.String())
	}
	if err := s.events.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record milestone event")
	}
	return nil
}
