package models

import (
	"strings"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusReleased  Status = "released"
	StatusRejected  Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusReleased || s == StatusRejected
}

const maxDescriptionLength = 1024

// Milestone gates a partial release of an NGO's escrow.
//
// Invariants:
//   - TargetAmount > 0, Approver non-empty
//   - Status follows pending → submitted → approved → released, or
//     submitted → rejected; released and rejected are terminal
//   - Attempt starts at 1; a resubmission links back through PreviousID
type Milestone struct {
	ID           domain.MilestoneID  `json:"id"`
	NGOID        domain.NGOID        `json:"ngo_id"`
	Description  string              `json:"description"`
	TargetAmount int64               `json:"target_amount"`
	Deadline     time.Time           `json:"deadline"`
	Approver     domain.Address      `json:"approver"`
	Status       Status              `json:"status"`
	PreviousID   *domain.MilestoneID `json:"previous_id,omitempty"`
	Attempt      int                 `json:"attempt"`
	CreatedBy    domain.Address      `json:"created_by"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Draft carries the caller-supplied fields of a new milestone.
type Draft struct {
	NGOID        domain.NGOID
	Description  string
	TargetAmount int64
	Deadline     time.Time
	Approver     domain.Address
}

func NewMilestone(id domain.MilestoneID, d Draft, createdBy domain.Address, now time.Time) (*Milestone, error) {
	desc := strings.TrimSpace(d.Description)
	if len(desc) > maxDescriptionLength {
		return nil, dErrors.New(dErrors.CodeValidation, "description must be 1024 characters or less")
	}
	if err := domain.ValidateAmount(d.TargetAmount); err != nil {
		return nil, err
	}
	if d.Approver.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "approver is required")
	}
	if !d.Deadline.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "deadline must be in the future")
	}
	return &Milestone{
		ID:           id,
		NGOID:        d.NGOID,
		Description:  desc,
		TargetAmount: d.TargetAmount,
		Deadline:     d.Deadline,
		Approver:     d.Approver,
		Status:       StatusPending,
		Attempt:      1,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (m *Milestone) transitionError(op string) error {
	return dErrors.Newf(dErrors.CodeInvalidState, "cannot %s milestone in status %s", op, m.Status)
}

// CanSubmit checks pending → submitted. Submitting after the deadline is refused.
func (m *Milestone) CanSubmit(now time.Time) error {
	if m.Status != StatusPending {
		return m.transitionError("submit")
	}
	if now.After(m.Deadline) {
		return dErrors.Newf(dErrors.CodeInvalidState, "milestone deadline %s has passed", m.Deadline.Format(time.RFC3339))
	}
	return nil
}

func (m *Milestone) ApplySubmit(now time.Time) {
	m.Status = StatusSubmitted
	m.UpdatedAt = now
}

// CanDecide checks caller is the approver and the milestone awaits a decision.
func (m *Milestone) CanDecide(caller domain.Address, op string) error {
	if caller.IsNil() || caller != m.Approver {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the milestone approver")
	}
	if m.Status != StatusSubmitted {
		return m.transitionError(op)
	}
	return nil
}

func (m *Milestone) ApplyApprove(now time.Time) {
	m.Status = StatusApproved
	m.UpdatedAt = now
}

func (m *Milestone) ApplyReject(now time.Time) {
	m.Status = StatusRejected
	m.UpdatedAt = now
}

// CanRelease checks approved → released.
func (m *Milestone) CanRelease() error {
	if m.Status != StatusApproved {
		return m.transitionError("release")
	}
	return nil
}

func (m *Milestone) ApplyRelease(now time.Time) {
	m.Status = StatusReleased
	m.UpdatedAt = now
}
