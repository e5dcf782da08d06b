package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"impactledger/pkg/domain"
)

// EventCategory classifies ledger events by the module family that emits them.
// Downstream consumers route categories to separate topics.
type EventCategory string

const (
	// CategoryLedger covers fund movements: donations, releases, fee skims, halts.
	CategoryLedger EventCategory = "ledger"

	// CategoryGovernance covers proposals, votes, timelock operations, role changes
	// and configuration updates executed by governance.
	CategoryGovernance EventCategory = "governance"

	// CategoryRegistry covers NGO registration/verification, milestones and module wiring.
	CategoryRegistry EventCategory = "registry"
)

// Event is emitted from domain logic inside the same unit of work as the state
// change it describes. It is transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Actor is the principal whose call produced the event.
	Actor domain.Address
	// Subject is the primary entity id (ngo, milestone, proposal, module name).
	Subject string
	// Amount is set for fund movements, in the base unit.
	Amount int64
	// Attributes carries event-specific fields (fee_bps, support, eta, ...).
	Attributes map[string]string
	RequestID  string
}

// Store persists events. Implementations must honour the unit of work in ctx so an
// aborted operation leaves no event behind.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// OutboxEntry is a committed event awaiting relay to the message broker.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

type AuditEvent string

const (
	// Ledger events
	EventDonationMade  AuditEvent = "donation_made"
	EventFundsReleased AuditEvent = "funds_released"
	EventFeeCharged    AuditEvent = "fee_charged"
	EventEscrowHalted  AuditEvent = "escrow_halted"

	// Registry events
	EventModuleUpdated      AuditEvent = "module_updated"
	EventNGORegistered      AuditEvent = "ngo_registered"
	EventNGOVerified        AuditEvent = "ngo_verified"
	EventNGORejected        AuditEvent = "ngo_rejected"
	EventNGOArchived        AuditEvent = "ngo_archived"
	EventMilestoneCreated   AuditEvent = "milestone_created"
	EventMilestoneSubmitted AuditEvent = "milestone_submitted"
	EventMilestoneApproved  AuditEvent = "milestone_approved"
	EventMilestoneRejected  AuditEvent = "milestone_rejected"
	EventMilestoneReleased  AuditEvent = "milestone_released"

	// Governance events
	EventProposalCreated     AuditEvent = "proposal_created"
	EventVoteCast            AuditEvent = "vote_cast"
	EventProposalQueued      AuditEvent = "proposal_queued"
	EventProposalExecuted    AuditEvent = "proposal_executed"
	EventProposalCanceled    AuditEvent = "proposal_canceled"
	EventFeeScheduleUpdated  AuditEvent = "fee_schedule_updated"
	EventRoleGranted         AuditEvent = "role_granted"
	EventRoleRevoked         AuditEvent = "role_revoked"
	EventGovernanceUpdated   AuditEvent = "governance_params_updated"
	EventTimelockScheduled   AuditEvent = "timelock_scheduled"
	EventTimelockCanceled    AuditEvent = "timelock_canceled"
	EventVotingPowerAssigned AuditEvent = "voting_power_assigned"
)

// eventCategories maps each event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventDonationMade:  CategoryLedger,
	EventFundsReleased: CategoryLedger,
	EventFeeCharged:    CategoryLedger,
	EventEscrowHalted:  CategoryLedger,

	EventModuleUpdated:      CategoryRegistry,
	EventNGORegistered:      CategoryRegistry,
	EventNGOVerified:        CategoryRegistry,
	EventNGORejected:        CategoryRegistry,
	EventNGOArchived:        CategoryRegistry,
	EventMilestoneCreated:   CategoryRegistry,
	EventMilestoneSubmitted: CategoryRegistry,
	EventMilestoneApproved:  CategoryRegistry,
	EventMilestoneRejected:  CategoryRegistry,
	EventMilestoneReleased:  CategoryRegistry,

	EventProposalCreated:     CategoryGovernance,
	EventVoteCast:            CategoryGovernance,
	EventProposalQueued:      CategoryGovernance,
	EventProposalExecuted:    CategoryGovernance,
	EventProposalCanceled:    CategoryGovernance,
	EventFeeScheduleUpdated:  CategoryGovernance,
	EventRoleGranted:         CategoryGovernance,
	EventRoleRevoked:         CategoryGovernance,
	EventGovernanceUpdated:   CategoryGovernance,
	EventTimelockScheduled:   CategoryGovernance,
	EventTimelockCanceled:    CategoryGovernance,
	EventVotingPowerAssigned: CategoryGovernance,
}

// Category returns the EventCategory for this event.
// Unknown events default to CategoryLedger.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryLedger
}

// New builds an event with its category derived from the action.
func New(action AuditEvent, actor domain.Address, subject string) Event {
	return Event{
		Category: action.Category(),
		Action:   string(action),
		Actor:    actor,
		Subject:  subject,
	}
}

// WithAmount sets the amount of a fund movement event.
func (e Event) WithAmount(amount int64) Event {
	e.Amount = amount
	return e
}

// With adds an attribute, copying the map so events built from a shared base
// never alias each other.
func (e Event) With(key, value string) Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}
