// Package bubblesync propagates committed primary-store mutations to the
// legacy Bubble backend, which still owns notification workflows, option-set
// data and downstream automations during the migration. Propagation is
// asynchronous, at-least-once and ordered per entity.
package bubblesync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entity types known to the queue. The legacy side keys its workflows off
// these names.
const (
	EntityTypeUser     = "user"
	EntityTypeListing  = "listing"
	EntityTypeProposal = "proposal"
	EntityTypeThread   = "thread"
	EntityTypeMessage  = "message"
	EntityTypeLease    = "lease"
)

// Standard operations. Producers may also pass a custom legacy workflow name
// (e.g. "proposal_accept") which is used verbatim.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// WorkflowRequest is the wire shape the legacy workflow endpoint accepts.
// The exact parameter vocabulary is owned by the legacy platform; this side
// only guarantees the envelope.
type WorkflowRequest struct {
	WorkflowName string          `json:"workflow_name"`
	Parameters   json.RawMessage `json:"parameters"`
}

// Snapshot is the immutable payload variant stored with a queue entry.
// One concrete type per entity type keeps request building exhaustive even
// though the legacy side is schemaless.
type Snapshot interface {
	// EntityType names the variant; it must match the owning entry.
	EntityType() string
}

type UserSnapshot struct {
	Version           int    `json:"version"`
	UserId            int    `json:"user_id"`
	LegacyId          string `json:"legacy_id,omitempty"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Phone             string `json:"phone,omitempty"`
	IsHost            bool   `json:"is_host"`
	ProposalsSent     int    `json:"proposals_sent"`
	ProposalsReceived int    `json:"proposals_received"`
}

func (UserSnapshot) EntityType() string { return EntityTypeUser }

type ListingSnapshot struct {
	Version       int             `json:"version"`
	ListingId     int             `json:"listing_id"`
	LegacyId      string          `json:"legacy_id,omitempty"`
	HostId        int             `json:"host_id"`
	Title         string          `json:"title"`
	Neighborhood  string          `json:"neighborhood,omitempty"`
	Borough       string          `json:"borough,omitempty"`
	NightlyRate   decimal.Decimal `json:"nightly_rate"`
	WeeklyRate    decimal.Decimal `json:"weekly_rate"`
	MonthlyRate   decimal.Decimal `json:"monthly_rate"`
	NightsOffered int             `json:"nights_offered"`
	Status        string          `json:"status"`
}

func (ListingSnapshot) EntityType() string { return EntityTypeListing }

type ProposalSnapshot struct {
	Version         int             `json:"version"`
	ProposalId      int             `json:"proposal_id"`
	LegacyId        string          `json:"legacy_id,omitempty"`
	ListingId       int             `json:"listing_id"`
	GuestId         int             `json:"guest_id"`
	HostId          int             `json:"host_id"`
	NightsRequested int             `json:"nights_requested"`
	MoveInDate      time.Time       `json:"move_in_date"`
	MoveOutDate     time.Time       `json:"move_out_date"`
	WeeklyRent      decimal.Decimal `json:"weekly_rent"`
	Status          string          `json:"status"`
	ThreadId        int             `json:"thread_id,omitempty"`
}

func (ProposalSnapshot) EntityType() string { return EntityTypeProposal }

type ThreadSnapshot struct {
	Version    int    `json:"version"`
	ThreadId   int    `json:"thread_id"`
	LegacyId   string `json:"legacy_id,omitempty"`
	ListingId  int    `json:"listing_id"`
	ProposalId int    `json:"proposal_id,omitempty"`
	GuestId    int    `json:"guest_id"`
	HostId     int    `json:"host_id"`
	Subject    string `json:"subject,omitempty"`
}

func (ThreadSnapshot) EntityType() string { return EntityTypeThread }

type MessageSnapshot struct {
	Version   int    `json:"version"`
	MessageId int    `json:"message_id"`
	LegacyId  string `json:"legacy_id,omitempty"`
	ThreadId  int    `json:"thread_id"`
	SenderId  int    `json:"sender_id"`
	IsSystem  bool   `json:"is_system"`
	Body      string `json:"body"`
}

func (MessageSnapshot) EntityType() string { return EntityTypeMessage }

type LeaseSnapshot struct {
	Version    int             `json:"version"`
	LeaseId    int             `json:"lease_id"`
	LegacyId   string          `json:"legacy_id,omitempty"`
	ProposalId int             `json:"proposal_id"`
	ListingId  int             `json:"listing_id"`
	GuestId    int             `json:"guest_id"`
	HostId     int             `json:"host_id"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	WeeklyRent decimal.Decimal `json:"weekly_rent"`
	Deposit    decimal.Decimal `json:"deposit"`
	Status     string          `json:"status"`
}

func (LeaseSnapshot) EntityType() string { return EntityTypeLease }

// DecodeSnapshot parses a stored payload blob into its typed variant.
// The switch is exhaustive over the entity types above; an unknown type is a
// terminal error, not a retryable one.
func DecodeSnapshot(entityType string, raw []byte) (Snapshot, error) {
	switch entityType {
	case EntityTypeUser:
		var s UserSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTypeListing:
		var s ListingSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTypeProposal:
		var s ProposalSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTypeThread:
		var s ThreadSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTypeMessage:
		var s MessageSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case EntityTypeLease:
		var s LeaseSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}

// WorkflowNameFor derives the legacy workflow to invoke. The three standard
// operations map to "<entity>_<op>"; anything else is already a workflow name.
func WorkflowNameFor(entityType string, operation string) string {
	switch operation {
	case OperationCreate, OperationUpdate, OperationDelete:
		return entityType + "_" + operation
	default:
		return operation
	}
}

// DispatchNudge is the Pub/Sub payload producers publish after commit so a
// sync service instance runs a dispatch pass without waiting for the next poll.
type DispatchNudge struct {
	CorrelationId string `json:"correlation_id"`
	EnqueuedAt    string `json:"enqueued_at"`
}

// PubSubPushEnvelope is the push-subscription wrapper GCP delivers.
type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
