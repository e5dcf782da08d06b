package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"impactledger/internal/governance/models"
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

func (s *PostgresStore) GetParams(ctx context.Context) (*models.Params, error) {
	var delay, period, minDelay int64
	var p models.Params
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT voting_delay_ms, voting_period_ms, min_delay_ms, quorum_bps, proposal_threshold
		FROM governance_params WHERE id = 1
	`).Scan(&delay, &period, &minDelay, &p.QuorumBps, &p.ProposalThreshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read governance params: %w", err)
	}
	p.VotingDelay = time.Duration(delay) * time.Millisecond
	p.VotingPeriod = time.Duration(period) * time.Millisecond
	p.MinDelay = time.Duration(minDelay) * time.Millisecond
	return &p, nil
}

func (s *PostgresStore) PutParams(ctx context.Context, p *models.Params) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO governance_params (id, voting_delay_ms, voting_period_ms, min_delay_ms, quorum_bps, proposal_threshold)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET voting_delay_ms    = EXCLUDED.voting_delay_ms,
		    voting_period_ms   = EXCLUDED.voting_period_ms,
		    min_delay_ms       = EXCLUDED.min_delay_ms,
		    quorum_bps         = EXCLUDED.quorum_bps,
		    proposal_threshold = EXCLUDED.proposal_threshold
	`, p.VotingDelay.Milliseconds(), p.VotingPeriod.Milliseconds(), p.MinDelay.Milliseconds(), p.QuorumBps, p.ProposalThreshold)
	if err != nil {
		return fmt.Errorf("write governance params: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p *models.Proposal) error {
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return fmt.Errorf("marshal proposal actions: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO proposals (id, proposer, description, action_kinds, actions, snapshot_at, vote_start, vote_end,
		                       quorum_bps, quorum, votes_for, votes_against, votes_abstain, status, op_hash, eta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, uuid.UUID(p.ID), p.Proposer.String(), p.Description, pq.Array(models.Kinds(p.Actions)), actions,
		p.SnapshotAt, p.VoteStart, p.VoteEnd, p.QuorumBps, p.Quorum, p.VotesFor, p.VotesAgainst, p.VotesAbstain,
		string(p.Status), p.OpHash, p.Eta, p.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProposal(ctx context.Context, p *models.Proposal) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE proposals
		SET votes_for = $2, votes_against = $3, votes_abstain = $4, status = $5, op_hash = $6, eta = $7
		WHERE id = $1
	`, uuid.UUID(p.ID), p.VotesFor, p.VotesAgainst, p.VotesAbstain, string(p.Status), p.OpHash, p.Eta)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectProposal = `
	SELECT id, proposer, description, actions, snapshot_at, vote_start, vote_end, quorum_bps, quorum,
	       votes_for, votes_against, votes_abstain, status, op_hash, eta, created_at
	FROM proposals`

func (s *PostgresStore) FindProposal(ctx context.Context, id domain.ProposalID) (*models.Proposal, error) {
	p, err := scanProposal(s.execer(ctx).QueryRowContext(ctx, selectProposal+` WHERE id = $1`, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context) ([]models.Proposal, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, selectProposal+` ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var out []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposals: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateVote(ctx context.Context, v *models.Vote) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO votes (proposal_id, voter, support, weight, cast_at) VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(v.ProposalID), v.Voter.String(), int(v.Support), v.Weight, v.CastAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindVote(ctx context.Context, id domain.ProposalID, voter domain.Address) (*models.Vote, error) {
	v := models.Vote{ProposalID: id, Voter: voter}
	var support int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT support, weight, cast_at FROM votes WHERE proposal_id = $1 AND voter = $2
	`, uuid.UUID(id), voter.String()).Scan(&support, &v.Weight, &v.CastAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read vote: %w", err)
	}
	v.Support = models.Support(support)
	return &v, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (*models.Proposal, error) {
	var (
		p                models.Proposal
		id               uuid.UUID
		proposer, status string
		actions          []byte
		eta              sql.NullTime
	)
	err := row.Scan(&id, &proposer, &p.Description, &actions, &p.SnapshotAt, &p.VoteStart, &p.VoteEnd,
		&p.QuorumBps, &p.Quorum, &p.VotesFor, &p.VotesAgainst, &p.VotesAbstain, &status, &p.OpHash, &eta, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan proposal: %w", err)
	}
	if err := json.Unmarshal(actions, &p.Actions); err != nil {
		return nil, fmt.Errorf("decode proposal actions: %w", err)
	}
	p.ID = domain.ProposalID(id)
	p.Proposer = domain.Address(proposer)
	p.Status = models.Status(status)
	if eta.Valid {
		t := eta.Time
		p.Eta = &t
	}
	return &p, nil
}
