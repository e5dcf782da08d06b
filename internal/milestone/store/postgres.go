package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"impactledger/internal/milestone/models"
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

const selectMilestone = `
	SELECT id, ngo_id, description, target_amount, deadline, approver, status,
	       previous_id, attempt, created_by, created_at, updated_at
	FROM milestones`

func (s *PostgresStore) Create(ctx context.Context, m *models.Milestone) error {
	var previous *uuid.UUID
	if m.PreviousID != nil {
		p := uuid.UUID(*m.PreviousID)
		previous = &p
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO milestones (id, ngo_id, description, target_amount, deadline, approver, status,
		                        previous_id, attempt, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, uuid.UUID(m.ID), uuid.UUID(m.NGOID), m.Description, m.TargetAmount, m.Deadline, m.Approver.String(),
		string(m.Status), previous, m.Attempt, m.CreatedBy.String(), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, m *models.Milestone) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE milestones SET status = $2, updated_at = $3 WHERE id = $1
	`, uuid.UUID(m.ID), string(m.Status), m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.MilestoneID) (*models.Milestone, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectMilestone+` WHERE id = $1`, uuid.UUID(id))
	return scanOne(row)
}

func (s *PostgresStore) FindByPrevious(ctx context.Context, id domain.MilestoneID) (*models.Milestone, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectMilestone+` WHERE previous_id = $1`, uuid.UUID(id))
	return scanOne(row)
}

func (s *PostgresStore) ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]models.Milestone, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectMilestone+` WHERE ngo_id = $1 ORDER BY created_at, attempt`, uuid.UUID(ngoID))
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []models.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*models.Milestone, error) {
	m, err := scanMilestone(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func scanMilestone(row scanner) (*models.Milestone, error) {
	var (
		m                           models.Milestone
		id, ngoID                   uuid.UUID
		previous                    uuid.NullUUID
		approver, status, createdBy string
	)
	if err := row.Scan(&id, &ngoID, &m.Description, &m.TargetAmount, &m.Deadline, &approver, &status,
		&previous, &m.Attempt, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan milestone: %w", err)
	}
	m.ID = domain.MilestoneID(id)
	m.NGOID = domain.NGOID(ngoID)
	m.Approver = domain.Address(approver)
	m.Status = models.Status(status)
	m.CreatedBy = domain.Address(createdBy)
	if previous.Valid {
		p := domain.MilestoneID(previous.UUID)
		m.PreviousID = &p
	}
	return &m, nil
}
