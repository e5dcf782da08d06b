package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"impactledger/internal/ngo/models"
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
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const profileColumns = `id, principal, metadata_ref, status, archived, registered_at, decided_at, decided_by`

func (s *PostgresStore) Create(ctx context.Context, p *models.Profile) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO ngos (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID.String(), p.Principal.String(), p.MetadataRef, string(p.Status), p.Archived,
		p.RegisteredAt, p.DecidedAt, p.DecidedBy.String())
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert ngo: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Profile) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE ngos SET status = $2, archived = $3, decided_at = $4, decided_by = $5
		WHERE id = $1
	`, p.ID.String(), string(p.Status), p.Archived, p.DecidedAt, p.DecidedBy.String())
	if err != nil {
		return fmt.Errorf("update ngo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.NGOID) (*models.Profile, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+profileColumns+` FROM ngos WHERE id = $1`, id.String())
	return scanProfile(row)
}

func (s *PostgresStore) FindLiveByPrincipal(ctx context.Context, principal domain.Address) (*models.Profile, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+profileColumns+` FROM ngos
		WHERE principal = $1 AND NOT archived AND status IN ('pending', 'verified')
	`, principal.String())
	return scanProfile(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Profile, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+profileColumns+` FROM ngos ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("list ngos: %w", err)
	}
	defer rows.Close()
	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.Profile, error) {
	var (
		p                    models.Profile
		id                   string
		principal, decidedBy string
		status               string
		decidedAt            sql.NullTime
	)
	if err := row.Scan(&id, &principal, &p.MetadataRef, &status, &p.Archived, &p.RegisteredAt, &decidedAt, &decidedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan ngo: %w", err)
	}
	parsed, err := domain.ParseNGOID(id)
	if err != nil {
		return nil, fmt.Errorf("scan ngo id: %w", err)
	}
	p.ID = parsed
	p.Principal = domain.Address(principal)
	p.DecidedBy = domain.Address(decidedBy)
	p.Status = models.Status(status)
	if decidedAt.Valid {
		t := decidedAt.Time
		p.DecidedAt = &t
	}
	return &p, nil
}
