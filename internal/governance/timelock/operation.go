package timelock

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusExecuted  Status = "executed"
	StatusCanceled  Status = "canceled"
)

// Operation is a scheduled call set that may not run before Eta.
//
// Invariants:
//   - Hash is unique across all operations, executed or not
//   - Status moves scheduled → executed or scheduled → canceled, never back
type Operation struct {
	Hash        string            `json:"hash"`
	ProposalID  domain.ProposalID `json:"proposal_id"`
	Eta         time.Time         `json:"eta"`
	Status      Status            `json:"status"`
	ScheduledBy domain.Address    `json:"scheduled_by"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	ExecutedAt  *time.Time        `json:"executed_at,omitempty"`
}

// OperationHash is the Keccak-256 of the proposal id followed by the encoded
// calls, hex encoded with a 0x prefix.
func OperationHash(proposalID domain.ProposalID, calls []byte) string {
	h := sha3.NewLegacyKeccak256()
	id := [16]byte(proposalID)
	h.Write(id[:])
	h.Write(calls)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// CanExecute checks the operation is pending and its delay has elapsed.
func (o *Operation) CanExecute(now time.Time) error {
	if o.Status != StatusScheduled {
		return dErrors.Newf(dErrors.CodeInvalidState, "operation %s is %s", o.Hash, o.Status)
	}
	if now.Before(o.Eta) {
		return dErrors.Newf(dErrors.CodeTimelockNotReady, "operation %s is not ready until %s",
			o.Hash, o.Eta.Format(time.RFC3339))
	}
	return nil
}

func (o *Operation) ApplyExecute(now time.Time) {
	o.Status = StatusExecuted
	o.ExecutedAt = &now
}

func (o *Operation) CanCancel() error {
	if o.Status != StatusScheduled {
		return dErrors.Newf(dErrors.CodeInvalidState, "operation %s is %s", o.Hash, o.Status)
	}
	return nil
}

func (o *Operation) ApplyCancel() {
	o.Status = StatusCanceled
}
