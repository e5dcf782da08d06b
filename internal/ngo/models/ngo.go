package models

import (
	"strings"
	"time"

	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusVerified || s == StatusRejected
}

const maxMetadataRefLength = 512

// Profile is the aggregate root for a fund recipient.
//
// Invariants:
//   - Principal and MetadataRef are non-empty
//   - Status moves Pending → Verified or Pending → Rejected, never back
//   - An archived profile is never deleted and is never treated as verified
type Profile struct {
	ID           domain.NGOID   `json:"id"`
	Principal    domain.Address `json:"principal"`
	MetadataRef  string         `json:"metadata_ref"`
	Status       Status         `json:"status"`
	Archived     bool           `json:"archived"`
	RegisteredAt time.Time      `json:"registered_at"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
	DecidedBy    domain.Address `json:"decided_by,omitempty"`
}

func NewProfile(id domain.NGOID, principal domain.Address, metadataRef string, now time.Time) (*Profile, error) {
	if principal.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "principal is required")
	}
	metadataRef = strings.TrimSpace(metadataRef)
	if metadataRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata reference is required")
	}
	if len(metadataRef) > maxMetadataRefLength {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata reference must be 512 characters or less")
	}
	return &Profile{
		ID:           id,
		Principal:    principal,
		MetadataRef:  metadataRef,
		Status:       StatusPending,
		RegisteredAt: now,
	}, nil
}

// IsVerified is the precondition other modules gate on.
func (p *Profile) IsVerified() bool {
	return p.Status == StatusVerified && !p.Archived
}

// IsLive reports whether the profile still blocks re-registration of its principal.
func (p *Profile) IsLive() bool {
	return !p.Archived && (p.Status == StatusPending || p.Status == StatusVerified)
}

func (p *Profile) canDecide() error {
	if p.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "ngo is archived")
	}
	if p.Status != StatusPending {
		return dErrors.Newf(dErrors.CodeInvalidState, "ngo is %s, not pending", p.Status)
	}
	return nil
}

// CanVerify checks the Pending → Verified transition.
func (p *Profile) CanVerify() error {
	return p.canDecide()
}

func (p *Profile) ApplyVerification(by domain.Address, now time.Time) {
	p.Status = StatusVerified
	p.DecidedBy = by
	p.DecidedAt = &now
}

// CanReject checks the Pending → Rejected transition.
func (p *Profile) CanReject() error {
	return p.canDecide()
}

func (p *Profile) ApplyRejection(by domain.Address, now time.Time) {
	p.Status = StatusRejected
	p.DecidedBy = by
	p.DecidedAt = &now
}

func (p *Profile) CanArchive() error {
	if p.Archived {
		return dErrors.New(dErrors.CodeInvalidState, "ngo is already archived")
	}
	return nil
}

func (p *Profile) ApplyArchive() {
	p.Archived = true
}
