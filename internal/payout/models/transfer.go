package models

import (
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

type Kind string

const (
	// KindFee moves the skimmed platform fee to the fee recipient.
	KindFee Kind = "fee"
	// KindRelease moves released escrow to the NGO principal.
	KindRelease Kind = "release"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDispatching Status = "dispatching"
	StatusSent        Status = "sent"
	StatusFailed      Status = "failed"
)

// Transfer is an outgoing movement of funds recorded in the same unit as the
// ledger write that caused it. It leaves the ledger only after commit.
//
// Invariants:
//   - Amount > 0, Recipient non-empty
//   - Status moves pending → dispatching → sent|failed
type Transfer struct {
	ID          domain.TransferID `json:"id"`
	Kind        Kind              `json:"kind"`
	NGOID       domain.NGOID      `json:"ngo_id"`
	Reference   string            `json:"reference"`
	Recipient   domain.Address    `json:"recipient"`
	Amount      int64             `json:"amount"`
	Status      Status            `json:"status"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
	ExternalRef string            `json:"external_ref,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func NewTransfer(kind Kind, ngoID domain.NGOID, reference string, recipient domain.Address, amount int64, now time.Time) (*Transfer, error) {
	if kind != KindFee && kind != KindRelease {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown transfer kind %q", kind)
	}
	if recipient.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "transfer recipient is required")
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	return &Transfer{
		ID:        domain.NewTransferID(),
		Kind:      kind,
		NGOID:     ngoID,
		Reference: reference,
		Recipient: recipient,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
