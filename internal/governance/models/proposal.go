package models

import (
	"strings"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// State is the externally visible proposal state. Pending, Active, Succeeded
// and Defeated are derived from the clock; the rest are recorded.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateSucceeded State = "succeeded"
	StateDefeated  State = "defeated"
	StateQueued    State = "queued"
	StateExecuted  State = "executed"
	StateCanceled  State = "canceled"
)

// Status is what the store records. Open proposals derive their state from
// the voting window and tally.
type Status string

const (
	StatusOpen     Status = "open"
	StatusQueued   Status = "queued"
	StatusExecuted Status = "executed"
	StatusCanceled Status = "canceled"
)

type Support int

const (
	SupportAgainst Support = 0
	SupportFor     Support = 1
	SupportAbstain Support = 2
)

func ParseSupport(v int) (Support, error) {
	s := Support(v)
	switch s {
	case SupportAgainst, SupportFor, SupportAbstain:
		return s, nil
	}
	return 0, dErrors.Newf(dErrors.CodeValidation, "support must be 0 (against), 1 (for) or 2 (abstain), got %d", v)
}

func (s Support) String() string {
	switch s {
	case SupportAgainst:
		return "against"
	case SupportFor:
		return "for"
	case SupportAbstain:
		return "abstain"
	}
	return "unknown"
}

const maxDescriptionLength = 4096

// Proposal is a set of actions put to a token vote.
//
// Invariants:
//   - VoteStart <= VoteEnd; SnapshotAt == VoteStart
//   - Quorum is fixed at creation from the supply and QuorumBps then in force
//   - executed and canceled are terminal; a defeated proposal can never be queued
type Proposal struct {
	ID           domain.ProposalID `json:"id"`
	Proposer     domain.Address    `json:"proposer"`
	Description  string            `json:"description"`
	Actions      []Action          `json:"actions"`
	SnapshotAt   time.Time         `json:"snapshot_at"`
	VoteStart    time.Time         `json:"vote_start"`
	VoteEnd      time.Time         `json:"vote_end"`
	QuorumBps    int64             `json:"quorum_bps"`
	Quorum       int64             `json:"quorum"`
	VotesFor     int64             `json:"votes_for"`
	VotesAgainst int64             `json:"votes_against"`
	VotesAbstain int64             `json:"votes_abstain"`
	Status       Status            `json:"status"`
	OpHash       string            `json:"op_hash,omitempty"`
	Eta          *time.Time        `json:"eta,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func NewProposal(proposer domain.Address, description string, actions []Action, params Params, supply int64, now time.Time) (*Proposal, error) {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "description is required")
	}
	if len(desc) > maxDescriptionLength {
		return nil, dErrors.New(dErrors.CodeValidation, "description must be 4096 characters or less")
	}
	if err := ValidateActions(actions); err != nil {
		return nil, err
	}
	start := params.SnapshotFor(now)
	return &Proposal{
		ID:          domain.NewProposalID(),
		Proposer:    proposer,
		Description: desc,
		Actions:     actions,
		SnapshotAt:  start,
		VoteStart:   start,
		VoteEnd:     start.Add(params.VotingPeriod),
		QuorumBps:   params.QuorumBps,
		Quorum:      params.Quorum(supply),
		Status:      StatusOpen,
		CreatedAt:   now,
	}, nil
}

// State derives the proposal state at now.
func (p *Proposal) State(now time.Time) State {
	switch p.Status {
	case StatusQueued:
		return StateQueued
	case StatusExecuted:
		return StateExecuted
	case StatusCanceled:
		return StateCanceled
	}
	if now.Before(p.VoteStart) {
		return StatePending
	}
	if now.Before(p.VoteEnd) {
		return StateActive
	}
	if p.VotesFor >= p.Quorum && p.VotesFor > p.VotesAgainst {
		return StateSucceeded
	}
	return StateDefeated
}

func (p *Proposal) stateError(op string, now time.Time) error {
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot %s proposal in state %s", op, p.State(now))
}

func (p *Proposal) CanVote(now time.Time) error {
	if p.State(now) != StateActive {
		return p.stateError("vote on", now)
	}
	return nil
}

func (p *Proposal) ApplyVote(support Support, weight int64) {
	switch support {
	case SupportFor:
		p.VotesFor += weight
	case SupportAgainst:
		p.VotesAgainst += weight
	case SupportAbstain:
		p.VotesAbstain += weight
	}
}

func (p *Proposal) CanQueue(now time.Time) error {
	if p.State(now) != StateSucceeded {
		return p.stateError("queue", now)
	}
	return nil
}

func (p *Proposal) ApplyQueue(opHash string, eta time.Time) {
	p.Status = StatusQueued
	p.OpHash = opHash
	p.Eta = &eta
}

func (p *Proposal) CanExecute(now time.Time) error {
	if p.State(now) != StateQueued {
		return p.stateError("execute", now)
	}
	return nil
}

func (p *Proposal) ApplyExecute() {
	p.Status = StatusExecuted
}

// CanCancel allows cancellation from any state that can still lead to execution.
func (p *Proposal) CanCancel(now time.Time) error {
	switch p.State(now) {
	case StatePending, StateActive, StateSucceeded, StateQueued:
		return nil
	}
	return p.stateError("cancel", now)
}

func (p *Proposal) ApplyCancel() {
	p.Status = StatusCanceled
}

// Vote is one principal's recorded ballot.
type Vote struct {
	ProposalID domain.ProposalID `json:"proposal_id"`
	Voter      domain.Address    `json:"voter"`
	Support    Support           `json:"support"`
	Weight     int64             `json:"weight"`
	CastAt     time.Time         `json:"cast_at"`
}
