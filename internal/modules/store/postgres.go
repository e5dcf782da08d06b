package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"impactledger/internal/modules/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	txcontext "impactledger/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, name string) (*models.Entry, error) {
	var (
		e       models.Entry
		addr    string
		updater string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT name, address, interface, version, updated_at, updated_by
		FROM modules WHERE name = $1
	`, name).Scan(&e.Name, &addr, &e.Handle.Interface, &e.Handle.Version, &e.UpdatedAt, &updater)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find module: %w", err)
	}
	e.Handle.Address = domain.Address(addr)
	e.UpdatedBy = domain.Address(updater)
	return &e, nil
}

func (s *PostgresStore) Put(ctx context.Context, entry *models.Entry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO modules (name, address, interface, version, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			address = EXCLUDED.address,
			interface = EXCLUDED.interface,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by
	`, entry.Name, entry.Handle.Address.String(), entry.Handle.Interface, entry.Handle.Version,
		entry.UpdatedAt, entry.UpdatedBy.String())
	if err != nil {
		return fmt.Errorf("upsert module: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT name, address, interface, version, updated_at, updated_by FROM modules ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		var (
			e             models.Entry
			addr, updater string
		)
		if err := rows.Scan(&e.Name, &addr, &e.Handle.Interface, &e.Handle.Version, &e.UpdatedAt, &updater); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		e.Handle.Address = domain.Address(addr)
		e.UpdatedBy = domain.Address(updater)
		out = append(out, e)
	}
	return out, rows.Err()
}
