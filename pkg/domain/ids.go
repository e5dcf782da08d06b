package domain

import (
	"github.com/google/uuid"

	dErrors "impactledger/pkg/domain-errors"
)

// Typed identifiers keep ledger entities from being mixed up at compile time:
// a MilestoneID can never be passed where an NGOID is expected.
type (
	NGOID       uuid.UUID
	MilestoneID uuid.UUID
	DonationID  uuid.UUID
	ProposalID  uuid.UUID
	TransferID  uuid.UUID
)

func NewNGOID() NGOID             { return NGOID(uuid.New()) }
func NewMilestoneID() MilestoneID { return MilestoneID(uuid.New()) }
func NewDonationID() DonationID   { return DonationID(uuid.New()) }
func NewProposalID() ProposalID   { return ProposalID(uuid.New()) }
func NewTransferID() TransferID   { return TransferID(uuid.New()) }

// parseID is the single trust-boundary parser for every identifier type.
// Empty strings, malformed values and the nil UUID are rejected.
func parseID[T ~[16]byte](s, kind string) (T, error) {
	var zero T
	if s == "" {
		return zero, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return zero, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return zero, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return T(u), nil
}

func ParseNGOID(s string) (NGOID, error)             { return parseID[NGOID](s, "ngo id") }
func ParseMilestoneID(s string) (MilestoneID, error) { return parseID[MilestoneID](s, "milestone id") }
func ParseDonationID(s string) (DonationID, error)   { return parseID[DonationID](s, "donation id") }
func ParseProposalID(s string) (ProposalID, error)   { return parseID[ProposalID](s, "proposal id") }
func ParseTransferID(s string) (TransferID, error)   { return parseID[TransferID](s, "transfer id") }

func (id NGOID) String() string       { return uuid.UUID(id).String() }
func (id MilestoneID) String() string { return uuid.UUID(id).String() }
func (id DonationID) String() string  { return uuid.UUID(id).String() }
func (id ProposalID) String() string  { return uuid.UUID(id).String() }
func (id TransferID) String() string  { return uuid.UUID(id).String() }

func (id NGOID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id MilestoneID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DonationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ProposalID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id TransferID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id NGOID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id MilestoneID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id DonationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ProposalID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id TransferID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *NGOID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *MilestoneID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DonationID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProposalID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TransferID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
