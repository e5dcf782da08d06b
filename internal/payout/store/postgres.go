package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"impactledger/internal/payout/models"
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

const transferColumns = `id, kind, ngo_id, reference, recipient, amount, status, attempts, last_error, external_ref, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Transfer) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, uuid.UUID(t.ID), string(t.Kind), uuid.UUID(t.NGOID), t.Reference, t.Recipient.String(), t.Amount,
		string(t.Status), t.Attempts, t.LastError, t.ExternalRef, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// Claim locks pending rows with SKIP LOCKED so parallel dispatchers never send
// the same transfer twice.
func (s *PostgresStore) Claim(ctx context.Context, limit int, at time.Time) ([]models.Transfer, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		UPDATE transfers SET status = 'dispatching', attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM transfers WHERE status = 'pending'
			ORDER BY seq LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+transferColumns, limit, at)
	if err != nil {
		return nil, fmt.Errorf("claim transfers: %w", err)
	}
	defer rows.Close()
	out, err := scanTransfers(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id domain.TransferID, status models.Status, externalRef, lastError string, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE transfers SET status = $2, external_ref = $3, last_error = $4, updated_at = $5
		WHERE id = $1 AND status = 'dispatching'
	`, uuid.UUID(id), string(status), externalRef, lastError, at)
	if err != nil {
		return fmt.Errorf("complete transfer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.execer(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM transfers WHERE id = $1)`, uuid.UUID(id)).Scan(&exists); err != nil {
			return fmt.Errorf("check transfer: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) ExpireLeases(ctx context.Context, cutoff time.Time, lastError string, at time.Time) ([]models.Transfer, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		UPDATE transfers SET status = 'failed', last_error = $2, updated_at = $3
		WHERE status = 'dispatching' AND updated_at < $1
		RETURNING `+transferColumns, cutoff, lastError, at)
	if err != nil {
		return nil, fmt.Errorf("expire transfer leases: %w", err)
	}
	defer rows.Close()
	out, err := scanTransfers(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *PostgresStore) ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]models.Transfer, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+transferColumns+` FROM transfers WHERE ngo_id = $1 ORDER BY seq
	`, uuid.UUID(ngoID))
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()
	return scanTransfers(rows)
}

func scanTransfers(rows *sql.Rows) ([]models.Transfer, error) {
	var out []models.Transfer
	for rows.Next() {
		var (
			t                 models.Transfer
			id, ngoID         uuid.UUID
			kind, status, rcp string
		)
		if err := rows.Scan(&id, &kind, &ngoID, &t.Reference, &rcp, &t.Amount, &status,
			&t.Attempts, &t.LastError, &t.ExternalRef, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.ID = domain.TransferID(id)
		t.NGOID = domain.NGOID(ngoID)
		t.Kind = models.Kind(kind)
		t.Status = models.Status(status)
		t.Recipient = domain.Address(rcp)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}
