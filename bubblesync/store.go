package bubblesync

import (
	"context"
	"time"

	"github.com/splitleasesharath/splitlease-sub012/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the queue-store surface the dispatcher and worker coordinate
// through. All claiming and resolution happens via conditional writes against
// it; there is no in-process lock shared between instances.
type Store interface {
	// DueEntries returns due pending entries, oldest first. Only the oldest
	// pending entry of each entity qualifies: when that entry is still
	// waiting out its backoff, the whole entity is held back so a newer
	// entry cannot overtake it.
	DueEntries(ctx context.Context, now time.Time, limit int) ([]models.SyncQueueEntry, error)

	// InFlightKeys returns the entity keys that currently have an entry
	// claimed. The dispatcher must not hand out a second entry for any of them.
	InFlightKeys(ctx context.Context) (map[string]struct{}, error)

	// Claim transitions one entry pending -> in_flight, conditional on it
	// still being pending. Returns ErrClaimLost when another instance won.
	Claim(ctx context.Context, id string, claimedBy string, now time.Time) error

	// MarkSucceeded resolves a claimed entry as terminal success.
	MarkSucceeded(ctx context.Context, id string, now time.Time) error

	// Reschedule returns a claimed entry to pending with the attempt count it
	// has consumed and the time of its next try.
	Reschedule(ctx context.Context, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error

	// DeadLetter resolves a claimed entry as terminal failure, recording the
	// attempts actually made.
	DeadLetter(ctx context.Context, id string, reason string, lastError string, attemptCount int, now time.Time) error

	// ReclaimStale returns entries claimed before the deadline to pending so
	// a crashed worker's claim does not wedge its entity forever.
	ReclaimStale(ctx context.Context, deadline time.Time) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DueEntries(ctx context.Context, now time.Time, limit int) ([]models.SyncQueueEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.SyncQueueEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", models.SyncStatusPending, now).
		Where(`NOT EXISTS (
			SELECT 1 FROM sync_queue_entries older
			WHERE older.entity_type = sync_queue_entries.entity_type
			  AND older.entity_id = sync_queue_entries.entity_id
			  AND older.status = ?
			  AND (older.created_at < sync_queue_entries.created_at
			    OR (older.created_at = sync_queue_entries.created_at AND older.id < sync_queue_entries.id))
		)`, models.SyncStatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&entries).Error
	return entries, err
}

func (s *gormStore) InFlightKeys(ctx context.Context) (map[string]struct{}, error) {
	var rows []models.SyncQueueEntry
	err := s.db.WithContext(ctx).
		Select("entity_type", "entity_id").
		Where("status = ?", models.SyncStatusInFlight).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(rows))
	for i := range rows {
		keys[rows[i].EntityKey()] = struct{}{}
	}
	return keys, nil
}

func (s *gormStore) Claim(ctx context.Context, id string, claimedBy string, now time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ? AND status = ?", id, models.SyncStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SyncStatusInFlight,
			"claimed_by": &claimedBy,
			"claimed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimLost
	}
	return nil
}

func (s *gormStore) MarkSucceeded(ctx context.Context, id string, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ? AND status = ?", id, models.SyncStatusInFlight).
		Updates(map[string]interface{}{
			"status":      models.SyncStatusSucceeded,
			"resolved_at": &now,
			"last_error":  nil,
			"claimed_at":  nil,
			"claimed_by":  nil,
		}).Error
}

func (s *gormStore) Reschedule(ctx context.Context, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ? AND status = ?", id, models.SyncStatusInFlight).
		Updates(map[string]interface{}{
			"status":          models.SyncStatusPending,
			"attempt_count":   attemptCount,
			"next_attempt_at": &nextAttemptAt,
			"last_error":      &lastError,
			"claimed_at":      nil,
			"claimed_by":      nil,
		}).Error
}

func (s *gormStore) DeadLetter(ctx context.Context, id string, reason string, lastError string, attemptCount int, now time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("id = ? AND status = ?", id, models.SyncStatusInFlight).
		Updates(map[string]interface{}{
			"status":             models.SyncStatusDeadLettered,
			"attempt_count":      attemptCount,
			"dead_letter_reason": &reason,
			"last_error":         &lastError,
			"resolved_at":        &now,
			"next_attempt_at":    nil,
			"claimed_at":         nil,
			"claimed_by":         nil,
		}).Error
}

func (s *gormStore) ReclaimStale(ctx context.Context, deadline time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?", models.SyncStatusInFlight, deadline).
		Updates(map[string]interface{}{
			"status":     models.SyncStatusPending,
			"claimed_at": nil,
			"claimed_by": nil,
		})
	return res.RowsAffected, res.Error
}
