package models

import (
	"fmt"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// ResubmitPolicy decides whether and how a rejected milestone may be retried.
type ResubmitPolicy interface {
	Name() string
	// Resubmit derives a fresh pending milestone from prev, or refuses.
	Resubmit(prev *Milestone, deadline time.Time, by domain.Address, now time.Time) (*Milestone, error)
}

const (
	PolicyNever = "never"
	PolicyClone = "clone"
)

// ParsePolicy builds a policy from its configured name.
func ParsePolicy(name string, maxAttempts int) (ResubmitPolicy, error) {
	switch name {
	case "", PolicyNever:
		return Never{}, nil
	case PolicyClone:
		if maxAttempts < 2 {
			return nil, fmt.Errorf("clone policy needs max attempts of at least 2, got %d", maxAttempts)
		}
		return Clone{MaxAttempts: maxAttempts}, nil
	default:
		return nil, fmt.Errorf("unknown resubmit policy %q", name)
	}
}

// Never keeps rejection terminal; a new milestone must be created.
type Never struct{}

func (Never) Name() string { return PolicyNever }

func (Never) Resubmit(*Milestone, time.Time, domain.Address, time.Time) (*Milestone, error) {
	return nil, dErrors.New(dErrors.CodeInvalidState, "rejected milestones cannot be resubmitted; create a new milestone")
}

// Clone copies a rejected milestone into a new pending attempt linked through
// PreviousID, up to MaxAttempts attempts in total.
type Clone struct {
	MaxAttempts int
}

func (Clone) Name() string { return PolicyClone }

func (c Clone) Resubmit(prev *Milestone, deadline time.Time, by domain.Address, now time.Time) (*Milestone, error) {
	if prev.Status != StatusRejected {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "only rejected milestones can be resubmitted, status is %s", prev.Status)
	}
	if prev.Attempt >= c.MaxAttempts {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "milestone reached %d attempts", c.MaxAttempts)
	}
	if deadline.IsZero() {
		deadline = prev.Deadline
	}
	next, err := NewMilestone(domain.NewMilestoneID(), Draft{
		NGOID:        prev.NGOID,
		Description:  prev.Description,
		TargetAmount: prev.TargetAmount,
		Deadline:     deadline,
		Approver:     prev.Approver,
	}, by, now)
	if err != nil {
		return nil, err
	}
	prevID := prev.ID
	next.PreviousID = &prevID
	next.Attempt = prev.Attempt + 1
	return next, nil
}
