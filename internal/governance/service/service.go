// Package service implements the Governor: token-weighted proposals whose
// actions run through the Timelock once voted, queued and delayed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	accessmodels "impactledger/internal/access/models"
	"impactledger/internal/governance/models"
	"impactledger/internal/governance/timelock"
	modulemodels "impactledger/internal/modules/models"
	modules "impactledger/internal/modules/service"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	GetParams(ctx context.Context) (*models.Params, error)
	PutParams(ctx context.Context, p *models.Params) error
	CreateProposal(ctx context.Context, p *models.Proposal) error
	UpdateProposal(ctx context.Context, p *models.Proposal) error
	FindProposal(ctx context.Context, id domain.ProposalID) (*models.Proposal, error)
	ListProposals(ctx context.Context) ([]models.Proposal, error)
	CreateVote(ctx context.Context, v *models.Vote) error
	FindVote(ctx context.Context, id domain.ProposalID, voter domain.Address) (*models.Vote, error)
}

// VotingPower is the token snapshot read governance weighs votes with.
type VotingPower interface {
	VotesAt(ctx context.Context, holder domain.Address, at time.Time) (int64, error)
	TotalSupplyAt(ctx context.Context, at time.Time) (int64, error)
}

type Timelock interface {
	Schedule(ctx context.Context, caller domain.Address, hash string, proposalID domain.ProposalID, eta time.Time) error
	Execute(ctx context.Context, caller domain.Address, hash string, calls timelock.Calls) error
	Cancel(ctx context.Context, caller domain.Address, hash string) error
}

// FeeScheduler is the FeeManager's governed write.
type FeeScheduler interface {
	SetSchedule(ctx context.Context, caller domain.Address, feeBps int64, recipient domain.Address) error
}

// ModuleRegistrar is the ModuleRegistry's admin write.
type ModuleRegistrar interface {
	Register(ctx context.Context, caller domain.Address, name string, handle modulemodels.Handle) error
}

type RoleAdmin interface {
	HasRole(ctx context.Context, role accessmodels.Role, who domain.Address) (bool, error)
	Grant(ctx context.Context, caller domain.Address, role accessmodels.Role, member domain.Address) error
	Revoke(ctx context.Context, caller domain.Address, role accessmodels.Role, member domain.Address) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store    Store
	power    VotingPower
	timelock Timelock
	modules  modules.Locator
	registry ModuleRegistrar
	roles    RoleAdmin
	runner   tx.Runner
	events   AuditPublisher
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, power VotingPower, tl Timelock, locator modules.Locator, registry ModuleRegistrar, roles RoleAdmin, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:    store,
		power:    power,
		timelock: tl,
		modules:  locator,
		registry: registry,
		roles:    roles,
		runner:   runner,
		events:   events,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// View is a proposal with its state at read time.
type View struct {
	models.Proposal
	State models.State `json:"state"`
}

// InitParams writes the genesis parameters. It fails once parameters exist.
func (s *Service) InitParams(ctx context.Context, p models.Params) error {
	return s.runner.Run(ctx, "governance.init_params", func(ctx context.Context) error {
		if _, err := s.store.GetParams(ctx); err == nil {
			return dErrors.New(dErrors.CodeInvalidState, "governance parameters are already initialized")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read governance params")
		}
		return s.writeParams(ctx, "", p)
	})
}

// SetParams replaces the parameters. Only the Timelock may call it.
func (s *Service) SetParams(ctx context.Context, caller domain.Address, p models.Params) error {
	return s.runner.Run(ctx, "governance.set_params", func(ctx context.Context) error {
		tl, err := s.modules.Address(ctx, modulemodels.NameTimelock, modulemodels.InterfaceTimelock)
		if err != nil {
			return err
		}
		if caller.IsNil() || caller != tl {
			return dErrors.New(dErrors.CodeForbidden, "only the timelock may change governance parameters")
		}
		return s.writeParams(ctx, caller, p)
	})
}

func (s *Service) writeParams(ctx context.Context, caller domain.Address, p models.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.PutParams(ctx, &p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write governance params")
	}
	return s.events.Emit(ctx, audit.New(audit.EventGovernanceUpdated, caller, modulemodels.NameGovernor).
		With("voting_delay", p.VotingDelay.String()).
		With("voting_period", p.VotingPeriod.String()).
		With("min_delay", p.MinDelay.String()).
		With("quorum_bps", strconv.FormatInt(p.QuorumBps, 10)).
		With("proposal_threshold", strconv.FormatInt(p.ProposalThreshold, 10)))
}

func (s *Service) Params(ctx context.Context) (models.Params, error) {
	var out models.Params
	err := s.runner.Run(ctx, "governance.params", func(ctx context.Context) error {
		p, err := s.params(ctx)
		if err != nil {
			return err
		}
		out = *p
		return nil
	})
	return out, err
}

// MinDelay is the timelock delay currently in force.
func (s *Service) MinDelay(ctx context.Context) (time.Duration, error) {
	p, err := s.Params(ctx)
	if err != nil {
		return 0, err
	}
	return p.MinDelay, nil
}

// Propose opens a proposal. The caller needs voting power of at least the
// proposal threshold.
func (s *Service) Propose(ctx context.Context, caller domain.Address, actions []models.Action, description string) (domain.ProposalID, error) {
	var id domain.ProposalID
	err := s.runner.Run(ctx, "governance.propose", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		params, err := s.params(ctx)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		power, err := s.power.VotesAt(ctx, caller, now)
		if err != nil {
			return err
		}
		if power < params.ProposalThreshold {
			return dErrors.Newf(dErrors.CodeForbidden, "voting power %d is below the proposal threshold %d", power, params.ProposalThreshold)
		}
		supply, err := s.power.TotalSupplyAt(ctx, params.SnapshotFor(now))
		if err != nil {
			return err
		}

		p, err := models.NewProposal(caller, description, actions, *params, supply, now)
		if err != nil {
			return err
		}
		if err := s.store.CreateProposal(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create proposal")
		}
		if err := s.events.Emit(ctx, audit.New(audit.EventProposalCreated, caller, p.ID.String()).
			With("actions", strings.Join(models.Kinds(actions), ",")).
			With("vote_start", p.VoteStart.UTC().Format(time.RFC3339)).
			With("vote_end", p.VoteEnd.UTC().Format(time.RFC3339)).
			With("quorum", strconv.FormatInt(p.Quorum, 10))); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record proposal")
		}
		id = p.ID
		s.logger.InfoContext(ctx, "proposal created", "proposal_id", id, "proposer", caller, "quorum", p.Quorum)
		return nil
	})
	return id, err
}

// CastVote records caller's ballot weighted by its power at the snapshot.
// A weight of 0 casts the full snapshot power.
func (s *Service) CastVote(ctx context.Context, caller domain.Address, id domain.ProposalID, support models.Support, weight int64) error {
	return s.runner.Run(ctx, "governance.cast_vote", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		if _, err := models.ParseSupport(int(support)); err != nil {
			return err
		}
		if weight < 0 {
			return dErrors.New(dErrors.CodeValidation, "weight must not be negative")
		}
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := p.CanVote(now); err != nil {
			return err
		}
		power, err := s.power.VotesAt(ctx, caller, p.SnapshotAt)
		if err != nil {
			return err
		}
		if power == 0 {
			return dErrors.New(dErrors.CodeForbidden, "caller had no voting power at the snapshot")
		}
		if weight == 0 {
			weight = power
		}
		if weight > power {
			return dErrors.Newf(dErrors.CodeValidation, "weight %d exceeds snapshot power %d", weight, power)
		}

		vote := &models.Vote{ProposalID: id, Voter: caller, Support: support, Weight: weight, CastAt: now}
		if err := s.store.CreateVote(ctx, vote); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "%s already voted on proposal %s", caller, id)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
		}
		p.ApplyVote(support, weight)
		if err := s.store.UpdateProposal(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update tally")
		}
		return s.events.Emit(ctx, audit.New(audit.EventVoteCast, caller, id.String()).
			WithAmount(weight).
			With("support", support.String()))
	})
}

// Queue schedules a succeeded proposal on the Timelock with eta = now + minDelay.
func (s *Service) Queue(ctx context.Context, caller domain.Address, id domain.ProposalID) (time.Time, error) {
	var eta time.Time
	err := s.runner.Run(ctx, "governance.queue", func(ctx context.Context) error {
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := p.CanQueue(now); err != nil {
			return err
		}
		params, err := s.params(ctx)
		if err != nil {
			return err
		}
		calls, err := models.EncodeActions(p.Actions)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode actions")
		}
		self, err := s.self(ctx)
		if err != nil {
			return err
		}

		eta = now.Add(params.MinDelay)
		hash := timelock.OperationHash(p.ID, calls)
		if err := s.timelock.Schedule(ctx, self, hash, p.ID, eta); err != nil {
			return err
		}
		p.ApplyQueue(hash, eta)
		if err := s.store.UpdateProposal(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update proposal")
		}
		return s.events.Emit(ctx, audit.New(audit.EventProposalQueued, caller, id.String()).
			With("op_hash", hash).
			With("eta", eta.UTC().Format(time.RFC3339)))
	})
	return eta, err
}

// Execute runs a queued proposal's actions through the Timelock. Before the
// eta it fails with CodeTimelockNotReady and the proposal stays queued.
func (s *Service) Execute(ctx context.Context, caller domain.Address, id domain.ProposalID) error {
	return s.runner.Run(ctx, "governance.execute", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		ok, err := s.roles.HasRole(ctx, accessmodels.RoleExecutor, caller)
		if err != nil {
			return err
		}
		if !ok {
			return dErrors.New(dErrors.CodeForbidden, "caller lacks role EXECUTOR")
		}
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := p.CanExecute(requestcontext.Now(ctx)); err != nil {
			return err
		}
		self, err := s.self(ctx)
		if err != nil {
			return err
		}
		err = s.timelock.Execute(ctx, self, p.OpHash, func(ctx context.Context, as domain.Address) error {
			for i, a := range p.Actions {
				if err := s.apply(ctx, as, a); err != nil {
					return dErrors.Wrap(err, dErrors.CodeOf(err), "action "+strconv.Itoa(i)+" ("+string(a.Kind)+") failed")
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		p.ApplyExecute()
		if err := s.store.UpdateProposal(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update proposal")
		}
		if err := s.events.Emit(ctx, audit.New(audit.EventProposalExecuted, caller, id.String()).
			With("op_hash", p.OpHash)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record execution")
		}
		s.logger.InfoContext(ctx, "proposal executed", "proposal_id", id, "actions", len(p.Actions))
		return nil
	})
}

// Cancel ends a proposal that has not executed. Only the proposer or an ADMIN
// may cancel.
func (s *Service) Cancel(ctx context.Context, caller domain.Address, id domain.ProposalID) error {
	return s.runner.Run(ctx, "governance.cancel", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if caller != p.Proposer {
			ok, err := s.roles.HasRole(ctx, accessmodels.RoleAdmin, caller)
			if err != nil {
				return err
			}
			if !ok {
				return dErrors.New(dErrors.CodeForbidden, "only the proposer or an admin may cancel")
			}
		}
		if err := p.CanCancel(requestcontext.Now(ctx)); err != nil {
			return err
		}
		if p.Status == models.StatusQueued {
			self, err := s.self(ctx)
			if err != nil {
				return err
			}
			if err := s.timelock.Cancel(ctx, self, p.OpHash); err != nil {
				return err
			}
		}
		p.ApplyCancel()
		if err := s.store.UpdateProposal(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update proposal")
		}
		return s.events.Emit(ctx, audit.New(audit.EventProposalCanceled, caller, id.String()))
	})
}

func (s *Service) Get(ctx context.Context, id domain.ProposalID) (View, error) {
	var out View
	err := s.runner.Run(ctx, "governance.get", func(ctx context.Context) error {
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		out = View{Proposal: *p, State: p.State(requestcontext.Now(ctx))}
		return nil
	})
	return out, err
}

func (s *Service) List(ctx context.Context) ([]View, error) {
	var out []View
	err := s.runner.Run(ctx, "governance.list", func(ctx context.Context) error {
		list, err := s.store.ListProposals(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list proposals")
		}
		now := requestcontext.Now(ctx)
		out = make([]View, 0, len(list))
		for i := range list {
			out = append(out, View{Proposal: list[i], State: list[i].State(now)})
		}
		return nil
	})
	return out, err
}

// Receipt returns voter's ballot on a proposal.
func (s *Service) Receipt(ctx context.Context, id domain.ProposalID, voter domain.Address) (*models.Vote, error) {
	var out *models.Vote
	err := s.runner.Run(ctx, "governance.receipt", func(ctx context.Context) error {
		v, err := s.store.FindVote(ctx, id, voter)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "%s has not voted on proposal %s", voter, id)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read vote")
		}
		out = v
		return nil
	})
	return out, err
}

// apply performs one action acting as the Timelock.
func (s *Service) apply(ctx context.Context, as domain.Address, a models.Action) error {
	switch a.Kind {
	case models.ActionSetFeeSchedule:
		fees, err := modules.Bind[FeeScheduler](ctx, s.modules, modulemodels.NameFeeManager, modulemodels.InterfaceFeeManager)
		if err != nil {
			return err
		}
		return fees.SetSchedule(ctx, as, *a.FeeBps, a.FeeRecipient)
	case models.ActionRegisterModule:
		return s.registry.Register(ctx, as, a.ModuleName, *a.Handle)
	case models.ActionGrantRole:
		return s.roles.Grant(ctx, as, a.Role, a.Member)
	case models.ActionRevokeRole:
		return s.roles.Revoke(ctx, as, a.Role, a.Member)
	case models.ActionSetGovernanceParams:
		return s.SetParams(ctx, as, *a.Params)
	}
	return dErrors.Newf(dErrors.CodeValidation, "unknown action kind %q", a.Kind)
}

func (s *Service) self(ctx context.Context) (domain.Address, error) {
	return s.modules.Address(ctx, modulemodels.NameGovernor, modulemodels.InterfaceGovernor)
}

func (s *Service) params(ctx context.Context) (*models.Params, error) {
	p, err := s.store.GetParams(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "governance parameters are not initialized")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read governance params")
	}
	return p, nil
}

func (s *Service) find(ctx context.Context, id domain.ProposalID) (*models.Proposal, error) {
	p, err := s.store.FindProposal(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "proposal %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read proposal")
	}
	return p, nil
}
