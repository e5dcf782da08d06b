package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"impactledger/internal/donation/models"
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

func (s *PostgresStore) FindAccount(ctx context.Context, ngoID domain.NGOID) (*models.Account, error) {
	var a models.Account
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT total_received, total_released, total_fees, halted, created_at, updated_at
		FROM escrow_accounts WHERE ngo_id = $1
	`, uuid.UUID(ngoID)).Scan(&a.TotalReceived, &a.TotalReleased, &a.TotalFees, &a.Halted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read escrow account: %w", err)
	}
	a.NGOID = ngoID
	return &a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a *models.Account) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO escrow_accounts (ngo_id, total_received, total_released, total_fees, halted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ngo_id) DO UPDATE
		SET total_received = EXCLUDED.total_received,
		    total_released = EXCLUDED.total_released,
		    total_fees     = EXCLUDED.total_fees,
		    halted         = EXCLUDED.halted,
		    updated_at     = EXCLUDED.updated_at
	`, uuid.UUID(a.NGOID), a.TotalReceived, a.TotalReleased, a.TotalFees, a.Halted, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write escrow account: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendDonation(ctx context.Context, r *models.Record) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO donations (id, ngo_id, donor, currency, original_amount, gross_amount, fee_amount, net_amount, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(r.ID), uuid.UUID(r.NGOID), r.Donor.String(), r.Currency.String(), r.OriginalAmount,
		r.GrossAmount, r.FeeAmount, r.NetAmount, r.Memo, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDonations(ctx context.Context, ngoID domain.NGOID) ([]models.Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, donor, currency, original_amount, gross_amount, fee_amount, net_amount, memo, created_at
		FROM donations WHERE ngo_id = $1 ORDER BY seq
	`, uuid.UUID(ngoID))
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			r               models.Record
			id              uuid.UUID
			donor, currency string
		)
		if err := rows.Scan(&id, &donor, &currency, &r.OriginalAmount, &r.GrossAmount,
			&r.FeeAmount, &r.NetAmount, &r.Memo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan donation: %w", err)
		}
		r.ID = domain.DonationID(id)
		r.NGOID = ngoID
		r.Donor = domain.Address(donor)
		r.Currency = domain.Currency(currency)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donations: %w", err)
	}
	return out, nil
}
