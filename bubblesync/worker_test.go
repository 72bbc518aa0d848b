package bubblesync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/splitleasesharath/splitlease-sub012/models"
)

type fakeInvoker struct {
	mu    sync.Mutex
	err   error
	calls []WorkflowRequest
}

func (f *fakeInvoker) Invoke(ctx context.Context, req WorkflowRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.err
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCollector struct {
	mu       sync.Mutex
	failures []Failure
}

func (f *fakeCollector) Collect(ctx context.Context, failure Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure)
}

func (f *fakeCollector) collected() []Failure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Failure(nil), f.failures...)
}

func testEntry(t *testing.T, entityType, entityID string, attemptCount int) models.SyncQueueEntry {
	t.Helper()
	var snap Snapshot
	switch entityType {
	case EntityTypeUser:
		snap = UserSnapshot{Version: 1, UserId: 7, Email: "guest@example.com"}
	case EntityTypeListing:
		snap = ListingSnapshot{Version: 1, ListingId: 12, HostId: 3, Title: "Sunny room in Astoria"}
	default:
		t.Fatalf("no snapshot builder for %q", entityType)
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	now := time.Now().UTC()
	return models.SyncQueueEntry{
		ID:            uuid.NewString(),
		CorrelationId: "corr-1",
		EntityType:    entityType,
		EntityId:      entityID,
		Operation:     OperationUpdate,
		Payload:       payload,
		Status:        models.SyncStatusInFlight,
		AttemptCount:  attemptCount,
		MaxAttempts:   5,
		CreatedAt:     now,
		NextAttemptAt: &now,
	}
}

func newTestWorker(store Store, invoker WorkflowInvoker, collector FailureCollector) *Worker {
	w := NewWorker(store, invoker, collector, nil)
	w.Retry = &RetryPolicy{Base: 100 * time.Millisecond, Max: time.Minute}
	return w
}

func TestProcessSuccessMarksSucceeded(t *testing.T) {
	store := newMemStore()
	invoker := &fakeInvoker{}
	collector := &fakeCollector{}
	w := newTestWorker(store, invoker, collector)

	entry := testEntry(t, EntityTypeUser, "7", 0)
	store.add(entry)
	w.Process(context.Background(), entry)

	got := store.get(entry.ID)
	if got.Status != models.SyncStatusSucceeded {
		t.Fatalf("status = %q, want succeeded", got.Status)
	}
	if got.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
	if invoker.callCount() != 1 {
		t.Errorf("invoker called %d times", invoker.callCount())
	}
	if len(collector.collected()) != 0 {
		t.Errorf("collector notified on success")
	}
	if name := invoker.calls[0].WorkflowName; name != "user_update" {
		t.Errorf("workflow = %q", name)
	}
}

func TestProcessRetryableFailureReschedules(t *testing.T) {
	store := newMemStore()
	invoker := &fakeInvoker{err: &RemoteError{StatusCode: 503, Retryable: true}}
	w := newTestWorker(store, invoker, &fakeCollector{})

	entry := testEntry(t, EntityTypeUser, "7", 0)
	store.add(entry)
	before := time.Now().UTC()
	w.Process(context.Background(), entry)

	got := store.get(entry.ID)
	if got.Status != models.SyncStatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt_count = %d, want 1", got.AttemptCount)
	}
	if got.NextAttemptAt == nil {
		t.Fatal("next_attempt_at not set")
	}
	// Jitter is off in the test policy: the first retry consumed one attempt,
	// so it is rescheduled base*2 later.
	wantNext := before.Add(200 * time.Millisecond)
	if got.NextAttemptAt.Before(wantNext) || got.NextAttemptAt.After(wantNext.Add(time.Second)) {
		t.Errorf("next_attempt_at = %v, want about %v", got.NextAttemptAt, wantNext)
	}
	if got.LastError == nil || *got.LastError == "" {
		t.Error("last_error not recorded")
	}

	// A second failure doubles the delay again.
	second := testEntry(t, EntityTypeUser, "8", 1)
	store.add(second)
	before = time.Now().UTC()
	w.Process(context.Background(), second)

	got = store.get(second.ID)
	wantNext = before.Add(400 * time.Millisecond)
	if got.NextAttemptAt.Before(wantNext) || got.NextAttemptAt.After(wantNext.Add(time.Second)) {
		t.Errorf("second retry next_attempt_at = %v, want about %v", got.NextAttemptAt, wantNext)
	}
}

func TestProcessExhaustionDeadLetters(t *testing.T) {
	store := newMemStore()
	invoker := &fakeInvoker{err: &RemoteError{StatusCode: 500, Retryable: true}}
	collector := &fakeCollector{}
	w := newTestWorker(store, invoker, collector)

	// Attempt 4 of 5: this failure consumes the last attempt.
	entry := testEntry(t, EntityTypeUser, "7", 4)
	store.add(entry)
	w.Process(context.Background(), entry)

	got := store.get(entry.ID)
	if got.Status != models.SyncStatusDeadLettered {
		t.Fatalf("status = %q, want dead_lettered", got.Status)
	}
	if got.DeadLetterReason == nil || *got.DeadLetterReason != models.DeadLetterReasonExhausted {
		t.Errorf("reason = %v, want retries_exhausted", got.DeadLetterReason)
	}
	if got.AttemptCount != 5 {
		t.Errorf("attempt_count = %d, want 5 attempts on record", got.AttemptCount)
	}

	failures := collector.collected()
	if len(failures) != 1 {
		t.Fatalf("collector got %d failures, want 1", len(failures))
	}
	if failures[0].ErrorClass != ErrorClassExhausted {
		t.Errorf("error class = %q", failures[0].ErrorClass)
	}
	if failures[0].CorrelationId != entry.CorrelationId {
		t.Errorf("correlation id = %q", failures[0].CorrelationId)
	}
}

func TestProcessTerminalFailureDeadLettersImmediately(t *testing.T) {
	store := newMemStore()
	invoker := &fakeInvoker{err: &RemoteError{StatusCode: 422, Retryable: false}}
	collector := &fakeCollector{}
	w := newTestWorker(store, invoker, collector)

	// First attempt; a terminal rejection must not burn through retries.
	entry := testEntry(t, EntityTypeListing, "12", 0)
	store.add(entry)
	w.Process(context.Background(), entry)

	got := store.get(entry.ID)
	if got.Status != models.SyncStatusDeadLettered {
		t.Fatalf("status = %q, want dead_lettered", got.Status)
	}
	if got.DeadLetterReason == nil || *got.DeadLetterReason != models.DeadLetterReasonRejected {
		t.Errorf("reason = %v, want rejected", got.DeadLetterReason)
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt_count = %d, want the rejected attempt recorded", got.AttemptCount)
	}

	failures := collector.collected()
	if len(failures) != 1 || failures[0].ErrorClass != ErrorClassTerminal {
		t.Fatalf("collector failures = %+v", failures)
	}
}

func TestProcessUndecodablePayloadIsTerminal(t *testing.T) {
	store := newMemStore()
	invoker := &fakeInvoker{}
	collector := &fakeCollector{}
	w := newTestWorker(store, invoker, collector)

	entry := testEntry(t, EntityTypeUser, "7", 0)
	entry.Payload = []byte("{not json")
	store.add(entry)
	w.Process(context.Background(), entry)

	got := store.get(entry.ID)
	if got.Status != models.SyncStatusDeadLettered {
		t.Fatalf("status = %q, want dead_lettered", got.Status)
	}
	if invoker.callCount() != 0 {
		t.Error("legacy endpoint called for a poison payload")
	}
	if got.AttemptCount != 0 {
		t.Errorf("attempt_count = %d, want 0 when no call was made", got.AttemptCount)
	}
	if len(collector.collected()) != 1 {
		t.Error("collector not notified")
	}
}
