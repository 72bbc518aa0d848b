package models

import "time"

// Sync queue entry statuses. Kept as strings (DB values).
const (
	SyncStatusPending      = "pending"
	SyncStatusInFlight     = "in_flight"
	SyncStatusSucceeded    = "succeeded"
	SyncStatusDeadLettered = "dead_lettered"
)

// Dead-letter reasons recorded alongside the terminal transition.
const (
	DeadLetterReasonRejected  = "rejected"
	DeadLetterReasonExhausted = "retries_exhausted"
)

// SyncQueueEntry is one unit of propagation toward the legacy platform.
// The payload is an immutable snapshot taken at enqueue time; retries always
// replay the snapshot, never a re-read of the current row. Rows are never
// deleted; terminal rows stay for audit and alert building.
type SyncQueueEntry struct {
	ID            string `gorm:"primaryKey;size:36" json:"id"`
	CorrelationId string `gorm:"size:64;index;not null" json:"correlation_id"`
	EntityType    string `gorm:"size:40;not null;index:idx_sync_entity,priority:1" json:"entity_type"`
	EntityId      string `gorm:"size:64;not null;index:idx_sync_entity,priority:2" json:"entity_id"`
	Operation     string `gorm:"size:60;not null" json:"operation"`

	Payload        []byte `gorm:"type:blob" json:"payload"`
	PayloadVersion int    `gorm:"not null;default:1" json:"payload_version"`

	Status       string `gorm:"size:20;not null;default:'pending';index:idx_sync_dispatch,priority:1" json:"status"`
	AttemptCount int    `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts  int    `gorm:"not null;default:5" json:"max_attempts"`

	LastError        *string    `gorm:"type:text" json:"last_error"`
	DeadLetterReason *string    `gorm:"size:40" json:"dead_letter_reason"`
	ClaimedBy        *string    `gorm:"size:100" json:"claimed_by"`
	ClaimedAt        *time.Time `gorm:"index" json:"claimed_at"`

	CreatedAt     time.Time  `gorm:"autoCreateTime;index:idx_sync_entity,priority:3" json:"created_at"`
	NextAttemptAt *time.Time `gorm:"index:idx_sync_dispatch,priority:2" json:"next_attempt_at"`
	ResolvedAt    *time.Time `gorm:"index" json:"resolved_at"`
	ArchivedAt    *time.Time `json:"archived_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SyncQueueEntry) TableName() string {
	return "sync_queue_entries"
}

// IsTerminal reports whether the entry has reached a final state.
func (e *SyncQueueEntry) IsTerminal() bool {
	return e.Status == SyncStatusSucceeded || e.Status == SyncStatusDeadLettered
}

// EntityKey identifies the primary-store record an entry belongs to.
// Ordering is enforced per key, not per entry.
func (e *SyncQueueEntry) EntityKey() string {
	return e.EntityType + "/" + e.EntityId
}

// SyncFailureRecord is one collected propagation failure. Records sharing a
// correlation id are rolled up into a single alert by the collector.
type SyncFailureRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CorrelationId string    `gorm:"size:64;index;not null" json:"correlation_id"`
	EntryId       string    `gorm:"size:36;index;not null" json:"entry_id"`
	EntityType    string    `gorm:"size:40;not null" json:"entity_type"`
	EntityId      string    `gorm:"size:64;not null" json:"entity_id"`
	Operation     string    `gorm:"size:60;not null" json:"operation"`
	ErrorClass    string    `gorm:"size:40;not null" json:"error_class"`
	Message       string    `gorm:"type:text" json:"message"`
	Alerted       bool      `gorm:"not null;default:false;index" json:"alerted"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SyncFailureRecord) TableName() string {
	return "sync_failure_records"
}
