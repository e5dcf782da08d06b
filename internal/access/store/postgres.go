package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"impactledger/internal/access/models"
	"impactledger/pkg/domain"
	txcontext "impactledger/pkg/platform/tx"
)

// PostgresStore persists role membership in role_members.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Has(ctx context.Context, role models.Role, member domain.Address) (bool, error) {
	var exists bool
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM role_members WHERE role = $1 AND member = $2)
	`, string(role), string(member)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Add(ctx context.Context, role models.Role, member domain.Address, at time.Time) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO role_members (role, member, granted_at) VALUES ($1, $2, $3)
		ON CONFLICT (role, member) DO NOTHING
	`, string(role), string(member), at)
	if err != nil {
		return false, fmt.Errorf("insert role member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert role member: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Remove(ctx context.Context, role models.Role, member domain.Address) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM role_members WHERE role = $1 AND member = $2
	`, string(role), string(member))
	if err != nil {
		return false, fmt.Errorf("delete role member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete role member: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) Members(ctx context.Context, role models.Role) ([]domain.Address, error) {
	var members []string
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(array_agg(member ORDER BY member), '{}') FROM role_members WHERE role = $1
	`, string(role)).Scan(pq.Array(&members))
	if err != nil {
		return nil, fmt.Errorf("list role members: %w", err)
	}
	out := make([]domain.Address, len(members))
	for i, m := range members {
		out[i] = domain.Address(m)
	}
	return out, nil
}
