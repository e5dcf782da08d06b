// Package service implements the NGO registry: identity and verification
// records for fund recipients, consulted by every module that moves funds.
package service

import (
	"context"
	"errors"
	"log/slog"

	accessmodels "impactledger/internal/access/models"
	"impactledger/internal/ngo/models"
	"impactledger/internal/ngo/reputation"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, p *models.Profile) error
	FindByID(ctx context.Context, id domain.NGOID) (*models.Profile, error)
	FindLiveByPrincipal(ctx context.Context, principal domain.Address) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
}

type RoleChecker interface {
	HasRole(ctx context.Context, role accessmodels.Role, who domain.Address) (bool, error)
	Require(ctx context.Context, role accessmodels.Role, who domain.Address) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// HistorySource supplies disbursement facts for reputation scoring.
type HistorySource interface {
	History(ctx context.Context, id domain.NGOID) (reputation.Inputs, error)
}

type Service struct {
	store   Store
	roles   RoleChecker
	runner  tx.Runner
	events  AuditPublisher
	scorer  reputation.Scorer
	history HistorySource
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithScorer replaces the default weighted reputation formula.
func WithScorer(scorer reputation.Scorer) Option {
	return func(s *Service) { s.scorer = scorer }
}

// WithHistory wires the milestone/escrow facts used for reputation.
func WithHistory(h HistorySource) Option {
	return func(s *Service) { s.history = h }
}

func New(store Store, roles RoleChecker, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		roles:  roles,
		runner: runner,
		events: events,
		scorer: reputation.NewWeighted(reputation.DefaultWeights()),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a Pending profile for principal. The principal may register
// itself; ADMIN and VERIFIER may register on its behalf.
func (s *Service) Register(ctx context.Context, caller, principal domain.Address, metadataRef string) (domain.NGOID, error) {
	var id domain.NGOID
	err := s.runner.Run(ctx, "ngo.register", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		if caller != principal {
			if err := s.requireAny(ctx, caller, accessmodels.RoleAdmin, accessmodels.RoleVerifier); err != nil {
				return err
			}
		}

		profile, err := models.NewProfile(domain.NewNGOID(), principal, metadataRef, requestcontext.Now(ctx))
		if err != nil {
			return err
		}

		live, err := s.store.FindLiveByPrincipal(ctx, principal)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
		}
		if live != nil {
			return dErrors.Newf(dErrors.CodeDuplicateRegistration, "principal %s already owns ngo %s", principal, live.ID)
		}

		if err := s.store.Create(ctx, profile); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeDuplicateRegistration, "principal %s already owns a live ngo", principal)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ngo")
		}
		if err := s.events.Emit(ctx, audit.New(audit.EventNGORegistered, caller, profile.ID.String()).
			With("principal", principal.String()).
			With("metadata_ref", profile.MetadataRef)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record registration")
		}
		id = profile.ID
		s.logger.InfoContext(ctx, "ngo registered", "ngo_id", id, "principal", principal)
		return nil
	})
	return id, err
}

func (s *Service) requireAny(ctx context.Context, caller domain.Address, roles ...accessmodels.Role) error {
	for _, role := range roles {
		ok, err := s.roles.HasRole(ctx, role, caller)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "caller may not register on behalf of another principal")
}

// Verify moves a Pending profile to Verified. VERIFIER only.
func (s *Service) Verify(ctx context.Context, caller domain.Address, id domain.NGOID) error {
	return s.runner.Run(ctx, "ngo.verify", func(ctx context.Context) error {
		if err := s.roles.Require(ctx, accessmodels.RoleVerifier, caller); err != nil {
			return err
		}
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := p.CanVerify(); err != nil {
			return err
		}
		p.ApplyVerification(caller, requestcontext.Now(ctx))
		return s.save(ctx, p, audit.New(audit.EventNGOVerified, caller, id.String()))
	})
}

// Reject moves a Pending profile to Rejected. VERIFIER only.
func (s *Service) Reject(ctx context.Context, caller domain.Address, id domain.NGOID) error {
	return s.runner.Run(ctx, "ngo.reject", func(ctx context.Context) error {
		if err := s.roles.Require(ctx, accessmodels.RoleVerifier, caller); err != nil {
			return err
		}
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := p.CanReject(); err != nil {
			return err
		}
		p.ApplyRejection(caller, requestcontext.Now(ctx))
		return s.save(ctx, p, audit.New(audit.EventNGORejected, caller, id.String()))
	})
}

// Archive retires a profile. It stays readable but is never verified again,
// and its principal may register a new identity. ADMIN only.
func (s *Service) Archive(ctx context.Context, caller domain.Address, id domain.NGOID) error {
	return s.runner.Run(ctx, "ngo.archive", func(ctx context.Context) error {
		if err := s.roles.Require(ctx, accessmodels.RoleAdmin, caller); err != nil {
			return err
		}
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if err := p.CanArchive(); err != nil {
			return err
		}
		p.ApplyArchive()
		return s.save(ctx, p, audit.New(audit.EventNGOArchived, caller, id.String()))
	})
}

func (s *Service) save(ctx context.Context, p *models.Profile, event audit.Event) error {
	if err := s.store.Update(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update ngo")
	}
	if err := s.events.Emit(ctx, event.With("status", string(p.Status))); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record ngo update")
	}
	s.logger.InfoContext(ctx, "ngo updated", "ngo_id", p.ID, "status", p.Status, "archived", p.Archived)
	return nil
}

// IsVerified reports whether id names a verified, non-archived NGO. Unknown ids
// are not verified.
func (s *Service) IsVerified(ctx context.Context, id domain.NGOID) (bool, error) {
	var verified bool
	err := s.runner.Run(ctx, "ngo.is_verified", func(ctx context.Context) error {
		p, err := s.store.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ngo")
		}
		verified = p.IsVerified()
		return nil
	})
	return verified, err
}

// Get returns the profile for id.
func (s *Service) Get(ctx context.Context, id domain.NGOID) (*models.Profile, error) {
	var p *models.Profile
	err := s.runner.Run(ctx, "ngo.get", func(ctx context.Context) error {
		var err error
		p, err = s.find(ctx, id)
		return err
	})
	return p, err
}

// List returns every profile, archived ones included.
func (s *Service) List(ctx context.Context) ([]*models.Profile, error) {
	var out []*models.Profile
	err := s.runner.Run(ctx, "ngo.list", func(ctx context.Context) error {
		var err error
		out, err = s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list ngos")
		}
		return nil
	})
	return out, err
}

// Reputation scores id with the configured Scorer.
func (s *Service) Reputation(ctx context.Context, id domain.NGOID) (reputation.Score, error) {
	var score reputation.Score
	err := s.runner.Run(ctx, "ngo.reputation", func(ctx context.Context) error {
		p, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		in := reputation.Inputs{}
		if s.history != nil {
			if in, err = s.history.History(ctx, id); err != nil {
				return err
			}
		}
		in.Verified = p.IsVerified()
		score = s.scorer.Score(in)
		return nil
	})
	return score, err
}

func (s *Service) find(ctx context.Context, id domain.NGOID) (*models.Profile, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "ngo %s not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read ngo")
	}
	return p, nil
}
