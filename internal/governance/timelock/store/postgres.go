package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"impactledger/internal/governance/timelock"
	"impactledger/internal/platform/postgres"
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, op *timelock.Operation) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO timelock_operations (op_hash, proposal_id, eta, status, scheduled_by, scheduled_at, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, op.Hash, uuid.UUID(op.ProposalID), op.Eta, string(op.Status), op.ScheduledBy.String(), op.ScheduledAt, op.ExecutedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert timelock operation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, op *timelock.Operation) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE timelock_operations SET status = $2, executed_at = $3 WHERE op_hash = $1
	`, op.Hash, string(op.Status), op.ExecutedAt)
	if err != nil {
		return fmt.Errorf("update timelock operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update timelock operation: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, hash string) (*timelock.Operation, error) {
	var (
		op                  timelock.Operation
		proposalID          uuid.UUID
		status, scheduledBy string
		executedAt          sql.NullTime
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT op_hash, proposal_id, eta, status, scheduled_by, scheduled_at, executed_at
		FROM timelock_operations WHERE op_hash = $1
	`, hash).Scan(&op.Hash, &proposalID, &op.Eta, &status, &scheduledBy, &op.ScheduledAt, &executedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read timelock operation: %w", err)
	}
	op.ProposalID = domain.ProposalID(proposalID)
	op.Status = timelock.Status(status)
	op.ScheduledBy = domain.Address(scheduledBy)
	if executedAt.Valid {
		t := executedAt.Time
		op.ExecutedAt = &t
	}
	return &op, nil
}
