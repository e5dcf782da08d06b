package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"impactledger/internal/fee/models"
	"impactledger/pkg/domain"
	"impactledger/pkg/platform/sentinel"
	txcontext "impactledger/pkg/platform/tx"
)

// PostgresStore keeps the singleton schedule in fee_schedule (id = 1).
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

func (s *PostgresStore) Get(ctx context.Context) (*models.Schedule, error) {
	var (
		sched                models.Schedule
		recipient, updatedBy string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT fee_bps, fee_recipient, updated_at, updated_by FROM fee_schedule WHERE id = 1
	`).Scan(&sched.FeeBps, &recipient, &sched.UpdatedAt, &updatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read fee schedule: %w", err)
	}
	sched.Recipient = domain.Address(recipient)
	sched.UpdatedBy = domain.Address(updatedBy)
	return &sched, nil
}

func (s *PostgresStore) Put(ctx context.Context, sched *models.Schedule) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO fee_schedule (id, fee_bps, fee_recipient, updated_at, updated_by)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET fee_bps = EXCLUDED.fee_bps, fee_recipient = EXCLUDED.fee_recipient,
		    updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
	`, sched.FeeBps, sched.Recipient.String(), sched.UpdatedAt, sched.UpdatedBy.String())
	if err != nil {
		return fmt.Errorf("write fee schedule: %w", err)
	}
	return nil
}
