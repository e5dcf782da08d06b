package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"impactledger/pkg/domain"
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) AppendBalance(ctx context.Context, holder domain.Address, at time.Time, balance int64) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO token_checkpoints (holder, at, balance) VALUES ($1, $2, $3)
	`, holder.String(), at, balance)
	if err != nil {
		return fmt.Errorf("insert balance checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) BalanceAt(ctx context.Context, holder domain.Address, at time.Time) (int64, error) {
	return s.latest(ctx, `
		SELECT balance FROM token_checkpoints
		WHERE holder = $1 AND at <= $2
		ORDER BY at DESC, seq DESC LIMIT 1
	`, holder.String(), at)
}

func (s *PostgresStore) AppendSupply(ctx context.Context, at time.Time, supply int64) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO supply_checkpoints (at, supply) VALUES ($1, $2)
	`, at, supply)
	if err != nil {
		return fmt.Errorf("insert supply checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) SupplyAt(ctx context.Context, at time.Time) (int64, error) {
	return s.latest(ctx, `
		SELECT supply FROM supply_checkpoints
		WHERE at <= $1
		ORDER BY at DESC, seq DESC LIMIT 1
	`, at)
}

func (s *PostgresStore) latest(ctx context.Context, query string, args ...any) (int64, error) {
	var v int64
	err := s.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return v, nil
}
