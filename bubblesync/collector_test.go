package bubblesync

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/splitleasesharath/splitlease-sub012/models"
)

type memFailureStore struct {
	mu   sync.Mutex
	recs []models.SyncFailureRecord
}

func (s *memFailureStore) Append(ctx context.Context, rec models.SyncFailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uint(len(s.recs) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memFailureStore) Unalerted(ctx context.Context, correlationId string) ([]models.SyncFailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SyncFailureRecord
	for _, r := range s.recs {
		if r.CorrelationId == correlationId && !r.Alerted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memFailureStore) MarkAlerted(ctx context.Context, correlationId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recs {
		if s.recs[i].CorrelationId == correlationId {
			s.recs[i].Alerted = true
		}
	}
	return nil
}

func (s *memFailureStore) StaleCorrelationIds(ctx context.Context, deadline time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range s.recs {
		if !r.Alerted && !r.CreatedAt.After(deadline) && !seen[r.CorrelationId] {
			seen[r.CorrelationId] = true
			out = append(out, r.CorrelationId)
		}
	}
	return out, nil
}

type memSink struct {
	mu    sync.Mutex
	posts []AlertMessage
}

func (s *memSink) Post(ctx context.Context, msg AlertMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, msg)
	return nil
}

func (s *memSink) posted() []AlertMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertMessage(nil), s.posts...)
}

func collectN(c *Collector, correlationId string, n int) {
	for i := 0; i < n; i++ {
		c.Collect(context.Background(), Failure{
			CorrelationId: correlationId,
			EntryId:       "entry-" + correlationId,
			EntityType:    EntityTypeProposal,
			EntityId:      "42",
			Operation:     OperationCreate,
			ErrorClass:    ErrorClassExhausted,
			Message:       "workflow returned 500",
		})
	}
}

func TestFlushBatchesOneAlertPerCorrelation(t *testing.T) {
	failures := &memFailureStore{}
	sink := &memSink{}
	c := NewCollector(failures, sink, nil)

	collectN(c, "corr-a", 5)
	if err := c.Flush(context.Background(), "corr-a"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	posts := sink.posted()
	if len(posts) != 1 {
		t.Fatalf("posted %d alerts, want 1", len(posts))
	}
	if len(posts[0].Failures) != 5 {
		t.Fatalf("alert carries %d failures, want 5", len(posts[0].Failures))
	}
	if posts[0].CorrelationId != "corr-a" {
		t.Errorf("correlation id = %q", posts[0].CorrelationId)
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	failures := &memFailureStore{}
	sink := &memSink{}
	c := NewCollector(failures, sink, nil)

	collectN(c, "corr-b", 3)
	if err := c.Flush(context.Background(), "corr-b"); err != nil {
		t.Fatalf("first Flush: %v", err)
	}
	if err := c.Flush(context.Background(), "corr-b"); err != nil {
		t.Fatalf("second Flush: %v", err)
	}

	if posts := sink.posted(); len(posts) != 1 {
		t.Fatalf("posted %d alerts after double flush, want 1", len(posts))
	}
}

func TestFlushWithNothingCollectedPostsNothing(t *testing.T) {
	sink := &memSink{}
	c := NewCollector(&memFailureStore{}, sink, nil)

	if err := c.Flush(context.Background(), "corr-empty"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sink.posted()) != 0 {
		t.Fatal("posted an alert with no failures")
	}
}

func TestQuietWindowHoldsThenReleases(t *testing.T) {
	failures := &memFailureStore{}
	c := NewCollector(failures, &memSink{}, nil)
	c.FlushAfter = 50 * time.Millisecond

	collectN(c, "corr-c", 1)
	if due := c.dueGroups(context.Background()); len(due) != 0 {
		t.Fatalf("group flushed before the quiet window: %v", due)
	}

	time.Sleep(60 * time.Millisecond)
	due := c.dueGroups(context.Background())
	if len(due) != 1 || due[0] != "corr-c" {
		t.Fatalf("due groups = %v, want [corr-c]", due)
	}
}

func TestCollectRearmsQuietWindow(t *testing.T) {
	failures := &memFailureStore{}
	c := NewCollector(failures, &memSink{}, nil)
	c.FlushAfter = 80 * time.Millisecond

	collectN(c, "corr-d", 1)
	time.Sleep(50 * time.Millisecond)
	// A new failure inside the window keeps the group open.
	collectN(c, "corr-d", 1)
	time.Sleep(50 * time.Millisecond)

	if due := c.dueGroups(context.Background()); len(due) != 0 {
		t.Fatalf("group flushed while failures were still arriving: %v", due)
	}
}

type flakySink struct {
	memSink
	failures int
}

func (s *flakySink) Post(ctx context.Context, msg AlertMessage) error {
	s.mu.Lock()
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return context.DeadlineExceeded
	}
	return s.memSink.Post(ctx, msg)
}

func TestSinkFailureLeavesGroupForRetry(t *testing.T) {
	failures := &memFailureStore{}
	sink := &flakySink{failures: 1}
	c := NewCollector(failures, sink, nil)

	collectN(c, "corr-e", 2)
	if err := c.Flush(context.Background(), "corr-e"); err == nil {
		t.Fatal("expected sink failure to surface")
	}
	if len(sink.posted()) != 0 {
		t.Fatal("failed post recorded as delivered")
	}

	// Records stay unalerted, so a later flush delivers the alert.
	if err := c.Flush(context.Background(), "corr-e"); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	posts := sink.posted()
	if len(posts) != 1 || len(posts[0].Failures) != 2 {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestStaleGroupsFlushAfterRestart(t *testing.T) {
	failures := &memFailureStore{}
	_ = failures.Append(context.Background(), models.SyncFailureRecord{
		CorrelationId: "corr-lost",
		EntryId:       "entry-1",
		EntityType:    EntityTypeLease,
		EntityId:      "9",
		Operation:     OperationCreate,
		ErrorClass:    ErrorClassTerminal,
		Message:       "workflow returned 422",
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
	})

	// Fresh collector, as after a restart: no in-memory window for the group.
	c := NewCollector(failures, &memSink{}, nil)

	due := c.dueGroups(context.Background())
	if len(due) != 1 || due[0] != "corr-lost" {
		t.Fatalf("due groups = %v, want [corr-lost]", due)
	}
}

func TestAlertMessageText(t *testing.T) {
	msg := AlertMessage{
		CorrelationId: "corr-x",
		Failures: []Failure{
			{EntityType: EntityTypeProposal, EntityId: "42", Operation: OperationCreate, ErrorClass: ErrorClassExhausted, Message: "500"},
			{EntityType: EntityTypeMessage, EntityId: "77", Operation: OperationCreate, ErrorClass: ErrorClassTerminal, Message: "422"},
		},
	}
	text := msg.Text()
	for _, want := range []string{"2 entries dead-lettered", "corr-x", "proposal/42", "message/77", "retries_exhausted", "terminal_remote"} {
		if !strings.Contains(text, want) {
			t.Errorf("alert text missing %q:\n%s", want, text)
		}
	}
}
