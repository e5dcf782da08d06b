package models

import (
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

// Params are the governor's tunables. They change only through a
// SetGovernanceParams action.
type Params struct {
	VotingDelay       time.Duration `json:"voting_delay"`
	VotingPeriod      time.Duration `json:"voting_period"`
	MinDelay          time.Duration `json:"min_delay"`
	QuorumBps         int64         `json:"quorum_bps"`
	ProposalThreshold int64         `json:"proposal_threshold"`
}

func (p Params) Validate() error {
	if p.VotingDelay < 0 {
		return dErrors.New(dErrors.CodeValidation, "voting delay must not be negative")
	}
	if p.VotingPeriod <= 0 {
		return dErrors.New(dErrors.CodeValidation, "voting period must be positive")
	}
	if p.MinDelay < 0 {
		return dErrors.New(dErrors.CodeValidation, "timelock min delay must not be negative")
	}
	if err := domain.ValidateBps(p.QuorumBps); err != nil {
		return err
	}
	if p.ProposalThreshold < 0 {
		return dErrors.New(dErrors.CodeValidation, "proposal threshold must not be negative")
	}
	return nil
}

// SnapshotFor is the instant whose balances weigh a proposal created at now.
func (p Params) SnapshotFor(now time.Time) time.Time {
	return now.Add(p.VotingDelay)
}

// Quorum is the For weight a proposal needs given the snapshot supply.
func (p Params) Quorum(supply int64) int64 {
	return domain.ApplyBps(supply, p.QuorumBps)
}
