package models

import (
	"context"
	"errors"
	"time"

	"github.com/splitleasesharath/splitlease-sub012/config"
	"gorm.io/gorm"
)

func GetSyncEntry(ctx context.Context, id string) (*SyncQueueEntry, error) {
	db := config.GetDB()
	var entry SyncQueueEntry
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetEntitySyncHistory returns all entries for one primary-store record,
// oldest first (the order the dispatcher replays them in).
func GetEntitySyncHistory(ctx context.Context, entityType string, entityId string) ([]SyncQueueEntry, error) {
	db := config.GetDB()
	var entries []SyncQueueEntry
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityId).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func ListDeadLetters(ctx context.Context, limit int, offset int) ([]SyncQueueEntry, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	db := config.GetDB().WithContext(ctx)

	var total int64
	if err := db.Model(&SyncQueueEntry{}).
		Where("status = ?", SyncStatusDeadLettered).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []SyncQueueEntry
	err := db.
		Where("status = ?", SyncStatusDeadLettered).
		Order("resolved_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, total, err
}

// RequeueDeadLetter moves a dead-lettered entry back to pending with a fresh
// attempt budget. The conditional update keeps the state machine honest: only
// dead_lettered rows can be requeued, and a stale requeue of an already
// requeued entry affects zero rows.
func RequeueDeadLetter(ctx context.Context, id string) (*SyncQueueEntry, error) {
	now := time.Now().UTC()
	db := config.GetDB()

	res := db.WithContext(ctx).
		Model(&SyncQueueEntry{}).
		Where("id = ? AND status = ?", id, SyncStatusDeadLettered).
		Updates(map[string]interface{}{
			"status":             SyncStatusPending,
			"attempt_count":      0,
			"next_attempt_at":    &now,
			"last_error":         nil,
			"dead_letter_reason": nil,
			"claimed_at":         nil,
			"claimed_by":         nil,
			"resolved_at":        nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var entry SyncQueueEntry
		if err := db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, gorm.ErrRecordNotFound
			}
			return nil, err
		}
		return nil, errors.New("entry is not dead-lettered")
	}

	return GetSyncEntry(ctx, id)
}

// RequeueDeadLettersBulk requeues all dead letters matching an entity type
// and/or correlation id. Used by the operational requeue command.
func RequeueDeadLettersBulk(ctx context.Context, entityType string, correlationId string) (int64, error) {
	if entityType == "" && correlationId == "" {
		return 0, errors.New("entity type or correlation id is required")
	}
	now := time.Now().UTC()

	q := config.GetDB().WithContext(ctx).
		Model(&SyncQueueEntry{}).
		Where("status = ?", SyncStatusDeadLettered)
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if correlationId != "" {
		q = q.Where("correlation_id = ?", correlationId)
	}

	res := q.Updates(map[string]interface{}{
		"status":             SyncStatusPending,
		"attempt_count":      0,
		"next_attempt_at":    &now,
		"last_error":         nil,
		"dead_letter_reason": nil,
		"claimed_at":         nil,
		"claimed_by":         nil,
		"resolved_at":        nil,
	})
	return res.RowsAffected, res.Error
}
