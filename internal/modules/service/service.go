// Package service implements the module registry: a name to handle directory
// through which every inter-module call is resolved, so governance can swap a
// module without rewriting its callers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"

	accessmodels "impactledger/internal/access/models"
	"impactledger/internal/modules/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/sentinel"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context, name string) (*models.Entry, error)
	Put(ctx context.Context, entry *models.Entry) error
	List(ctx context.Context) ([]models.Entry, error)
}

// RoleChecker gates registry writes on ADMIN.
type RoleChecker interface {
	Require(ctx context.Context, role accessmodels.Role, who domain.Address) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store  Store
	roles  RoleChecker
	runner tx.Runner
	events AuditPublisher
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(store Store, roles RoleChecker, runner tx.Runner, events AuditPublisher, opts ...Option) *Service {
	s := &Service{store: store, roles: roles, runner: runner, events: events, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds name to handle. Re-registering a name with the same interface
// overwrites the handle in place; a different interface is a collision.
func (s *Service) Register(ctx context.Context, caller domain.Address, name string, handle models.Handle) error {
	return s.runner.Run(ctx, "modules.register", func(ctx context.Context) error {
		if err := s.roles.Require(ctx, accessmodels.RoleAdmin, caller); err != nil {
			return err
		}
		if err := models.ValidateName(name); err != nil {
			return err
		}
		if err := handle.Validate(); err != nil {
			return err
		}

		existing, err := s.store.Get(ctx, name)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module entry")
		}
		event := audit.New(audit.EventModuleUpdated, caller, name).
			With("address", handle.Address.String()).
			With("interface", handle.Interface).
			With("version", strconv.Itoa(handle.Version))
		if existing != nil {
			if err := existing.CanReplace(handle); err != nil {
				return err
			}
			event = event.With("previous_address", existing.Handle.Address.String())
		}

		entry := &models.Entry{
			Name:      name,
			Handle:    handle,
			UpdatedAt: requestcontext.Now(ctx),
			UpdatedBy: caller,
		}
		if err := s.store.Put(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write module entry")
		}
		if err := s.events.Emit(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record module update")
		}
		s.logger.InfoContext(ctx, "module registered",
			"name", name,
			"address", handle.Address,
			"interface", handle.Interface,
			"version", handle.Version,
		)
		return nil
	})
}

// Resolve returns the handle bound to name.
func (s *Service) Resolve(ctx context.Context, name string) (models.Handle, error) {
	var handle models.Handle
	err := s.runner.Run(ctx, "modules.resolve", func(ctx context.Context) error {
		entry, err := s.store.Get(ctx, name)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "module %s is not registered", name)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read module entry")
		}
		handle = entry.Handle
		return nil
	})
	return handle, err
}

// ResolveAs resolves name and checks its interface tag and minimum version.
func (s *Service) ResolveAs(ctx context.Context, name, iface string, minVersion int) (models.Handle, error) {
	handle, err := s.Resolve(ctx, name)
	if err != nil {
		return models.Handle{}, err
	}
	if handle.Interface != iface {
		return models.Handle{}, dErrors.Newf(dErrors.CodeInvalidState,
			"module %s implements %s, want %s", name, handle.Interface, iface)
	}
	if handle.Version < minVersion {
		return models.Handle{}, dErrors.Newf(dErrors.CodeInvalidState,
			"module %s is version %d, want at least %d", name, handle.Version, minVersion)
	}
	return handle, nil
}

// ListAll returns every entry ordered by name.
func (s *Service) ListAll(ctx context.Context) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.runner.Run(ctx, "modules.list", func(ctx context.Context) error {
		var err error
		entries, err = s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list modules")
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return nil
	})
	return entries, err
}
