// Package service implements role-based access control: a map from role to a
// set of principals, checked at the top of every mutating ledger operation.
package service

import (
	"context"
	"log/slog"
	"time"

	"impactledger/internal/access/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	Has(ctx context.Context, role models.Role, member domain.Address) (bool, error)
	Add(ctx context.Context, role models.Role, member domain.Address, at time.Time) (bool, error)
	Remove(ctx context.Context, role models.Role, member domain.Address) (bool, error)
	Members(ctx context.Context, role models.Role) ([]domain.Address, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store  Store
	runner tx.Runner
	events AuditPublisher
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{store: store, runner: runner, events: events, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasRole reports whether who holds role, directly or through an open grant to
// domain.AnyAddress.
func (s *Service) HasRole(ctx context.Context, role models.Role, who domain.Address) (bool, error) {
	var has bool
	err := s.runner.Run(ctx, "access.has_role", func(ctx context.Context) error {
		var err error
		has, err = s.hasRole(ctx, role, who)
		return err
	})
	return has, err
}

func (s *Service) hasRole(ctx context.Context, role models.Role, who domain.Address) (bool, error) {
	if who.IsNil() {
		return false, nil
	}
	ok, err := s.store.Has(ctx, role, who)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read role")
	}
	if ok || who == domain.AnyAddress {
		return ok, nil
	}
	open, err := s.store.Has(ctx, role, domain.AnyAddress)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read role")
	}
	return open, nil
}

// Require fails with CodeForbidden unless who holds role.
func (s *Service) Require(ctx context.Context, role models.Role, who domain.Address) error {
	return s.runner.Run(ctx, "access.require", func(ctx context.Context) error {
		ok, err := s.hasRole(ctx, role, who)
		if err != nil {
			return err
		}
		if !ok {
			return dErrors.Newf(dErrors.CodeForbidden, "caller lacks role %s", role)
		}
		return nil
	})
}

// Grant adds member to role. Caller must hold ADMIN.
func (s *Service) Grant(ctx context.Context, caller domain.Address, role models.Role, member domain.Address) error {
	return s.runner.Run(ctx, "access.grant", func(ctx context.Context) error {
		if err := s.Require(ctx, models.RoleAdmin, caller); err != nil {
			return err
		}
		return s.grant(ctx, caller, role, member)
	})
}

// Seed grants a role without an authorization check. Only genesis bootstrap
// calls it, before any ADMIN exists.
func (s *Service) Seed(ctx context.Context, role models.Role, member domain.Address) error {
	return s.runner.Run(ctx, "access.seed", func(ctx context.Context) error {
		return s.grant(ctx, "", role, member)
	})
}

func (s *Service) grant(ctx context.Context, caller domain.Address, role models.Role, member domain.Address) error {
	if _, err := models.ParseRole(string(role)); err != nil {
		return err
	}
	if member.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "member is required")
	}
	added, err := s.store.Add(ctx, role, member, requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant role")
	}
	if !added {
		return nil
	}
	if err := s.events.Emit(ctx, audit.New(audit.EventRoleGranted, caller, string(role)).With("member", member.String())); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record role grant")
	}
	s.logger.InfoContext(ctx, "role granted", "role", role, "member", member)
	return nil
}

// Revoke removes member from role. Caller must hold ADMIN.
func (s *Service) Revoke(ctx context.Context, caller domain.Address, role models.Role, member domain.Address) error {
	return s.runner.Run(ctx, "access.revoke", func(ctx context.Context) error {
		if err := s.Require(ctx, models.RoleAdmin, caller); err != nil {
			return err
		}
		return s.revoke(ctx, caller, role, member)
	})
}

// Renounce drops a role the caller holds itself.
func (s *Service) Renounce(ctx context.Context, caller domain.Address, role models.Role) error {
	return s.runner.Run(ctx, "access.renounce", func(ctx context.Context) error {
		if caller.IsNil() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is required")
		}
		return s.revoke(ctx, caller, role, caller)
	})
}

func (s *Service) revoke(ctx context.Context, caller domain.Address, role models.Role, member domain.Address) error {
	if _, err := models.ParseRole(string(role)); err != nil {
		return err
	}
	removed, err := s.store.Remove(ctx, role, member)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke role")
	}
	if !removed {
		return dErrors.Newf(dErrors.CodeNotFound, "%s does not hold role %s", member, role)
	}
	if err := s.events.Emit(ctx, audit.New(audit.EventRoleRevoked, caller, string(role)).With("member", member.String())); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record role revocation")
	}
	s.logger.InfoContext(ctx, "role revoked", "role", role, "member", member)
	return nil
}

// Members lists the holders of role.
func (s *Service) Members(ctx context.Context, role models.Role) ([]domain.Address, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, err
	}
	var members []domain.Address
	err := s.runner.Run(ctx, "access.members", func(ctx context.Context) error {
		var err error
		members, err = s.store.Members(ctx, role)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list role members")
		}
		return nil
	})
	return members, err
}
