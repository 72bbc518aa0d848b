package bubblesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"gorm.io/gorm"
)

// EnqueueInput describes one change to propagate. Snapshot is marshalled once
// at enqueue time and never re-read; a retry replays exactly what the
// producer committed.
type EnqueueInput struct {
	EntityType    string
	EntityId      string
	Operation     string
	CorrelationId string
	Snapshot      Snapshot
	MaxAttempts   int
}

const defaultMaxAttempts = 5

// Enqueue records a propagation entry on the caller's transaction. It does no
// network I/O; durability follows the transaction's commit, so a rolled-back
// primary-store write leaves no orphan entry behind.
func Enqueue(tx *gorm.DB, in EnqueueInput) (string, error) {
	if tx == nil {
		return "", errors.New("transaction is required")
	}
	if in.EntityType == "" || in.EntityId == "" {
		return "", errors.New("entity type and id are required")
	}
	if in.Operation == "" {
		return "", errors.New("operation is required")
	}
	if in.Snapshot == nil {
		return "", errors.New("snapshot is required")
	}
	if in.Snapshot.EntityType() != in.EntityType {
		return "", fmt.Errorf("snapshot variant %q does not match entity type %q", in.Snapshot.EntityType(), in.EntityType)
	}

	payload, err := json.Marshal(in.Snapshot)
	if err != nil {
		return "", err
	}

	maxAttempts := in.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	correlationId := in.CorrelationId
	if correlationId == "" {
		correlationId = uuid.NewString()
	}

	now := time.Now().UTC()
	entry := models.SyncQueueEntry{
		ID:             uuid.NewString(),
		CorrelationId:  correlationId,
		EntityType:     in.EntityType,
		EntityId:       in.EntityId,
		Operation:      in.Operation,
		Payload:        payload,
		PayloadVersion: 1,
		Status:         models.SyncStatusPending,
		MaxAttempts:    maxAttempts,
		NextAttemptAt:  &now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return "", err
	}
	return entry.ID, nil
}

// BuildWorkflowRequest turns a stored entry into the request the legacy
// endpoint accepts. Decoding through the typed variant (rather than passing
// the blob through) keeps request building exhaustive per entity type.
func BuildWorkflowRequest(entry *models.SyncQueueEntry) (WorkflowRequest, error) {
	snap, err := DecodeSnapshot(entry.EntityType, entry.Payload)
	if err != nil {
		return WorkflowRequest{}, err
	}

	params := map[string]interface{}{
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityId,
		"operation":   entry.Operation,
		"snapshot":    snap,
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return WorkflowRequest{}, err
	}

	return WorkflowRequest{
		WorkflowName: WorkflowNameFor(entry.EntityType, entry.Operation),
		Parameters:   raw,
	}, nil
}
