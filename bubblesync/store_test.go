package bubblesync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/splitleasesharath/splitlease-sub012/models"
)

// memStore implements Store with the same transition rules as the MySQL
// store. Tests drive the dispatcher and worker against it without a database.
type memStore struct {
	mu      sync.Mutex
	entries map[string]*models.SyncQueueEntry
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*models.SyncQueueEntry{}}
}

func (s *memStore) add(entry models.SyncQueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry
	s.entries[e.ID] = &e
}

func (s *memStore) get(id string) models.SyncQueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entries[id]
}

func (s *memStore) DueEntries(ctx context.Context, now time.Time, limit int) ([]models.SyncQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Oldest pending entry per entity; the entity yields nothing while that
	// entry is waiting out its backoff.
	heads := map[string]*models.SyncQueueEntry{}
	for _, e := range s.entries {
		if e.Status != models.SyncStatusPending {
			continue
		}
		cur, ok := heads[e.EntityKey()]
		if !ok || e.CreatedAt.Before(cur.CreatedAt) ||
			(e.CreatedAt.Equal(cur.CreatedAt) && e.ID < cur.ID) {
			heads[e.EntityKey()] = e
		}
	}
	var due []models.SyncQueueEntry
	for _, e := range heads {
		if e.NextAttemptAt != nil && !e.NextAttemptAt.After(now) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].CreatedAt.Equal(due[j].CreatedAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memStore) InFlightKeys(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := map[string]struct{}{}
	for _, e := range s.entries {
		if e.Status == models.SyncStatusInFlight {
			keys[e.EntityKey()] = struct{}{}
		}
	}
	return keys, nil
}

func (s *memStore) Claim(ctx context.Context, id string, claimedBy string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != models.SyncStatusPending {
		return ErrClaimLost
	}
	e.Status = models.SyncStatusInFlight
	e.ClaimedBy = &claimedBy
	t := now
	e.ClaimedAt = &t
	return nil
}

func (s *memStore) MarkSucceeded(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	e.Status = models.SyncStatusSucceeded
	t := now
	e.ResolvedAt = &t
	e.ClaimedBy = nil
	e.ClaimedAt = nil
	return nil
}

func (s *memStore) Reschedule(ctx context.Context, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	e.Status = models.SyncStatusPending
	e.AttemptCount = attemptCount
	t := nextAttemptAt
	e.NextAttemptAt = &t
	msg := lastError
	e.LastError = &msg
	e.ClaimedBy = nil
	e.ClaimedAt = nil
	return nil
}

func (s *memStore) DeadLetter(ctx context.Context, id string, reason string, lastError string, attemptCount int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	e.Status = models.SyncStatusDeadLettered
	e.AttemptCount = attemptCount
	r := reason
	e.DeadLetterReason = &r
	msg := lastError
	e.LastError = &msg
	t := now
	e.ResolvedAt = &t
	e.ClaimedBy = nil
	e.ClaimedAt = nil
	return nil
}

func (s *memStore) ReclaimStale(ctx context.Context, deadline time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.entries {
		if e.Status == models.SyncStatusInFlight && e.ClaimedAt != nil && e.ClaimedAt.Before(deadline) {
			e.Status = models.SyncStatusPending
			e.ClaimedBy = nil
			e.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}
