package bubblesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"gorm.io/gorm"
)

// FailureStore persists collected failures. The queue store doubles as the
// accumulation buffer so a flush built from it survives process restarts.
type FailureStore interface {
	Append(ctx context.Context, rec models.SyncFailureRecord) error
	Unalerted(ctx context.Context, correlationId string) ([]models.SyncFailureRecord, error)
	MarkAlerted(ctx context.Context, correlationId string) error
	// StaleCorrelationIds returns correlation ids with unalerted failures
	// older than the deadline. Catches groups whose in-memory window was lost
	// to a restart.
	StaleCorrelationIds(ctx context.Context, deadline time.Time) ([]string, error)
}

type gormFailureStore struct {
	db *gorm.DB
}

func NewFailureStore(db *gorm.DB) FailureStore {
	return &gormFailureStore{db: db}
}

func (s *gormFailureStore) Append(ctx context.Context, rec models.SyncFailureRecord) error {
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *gormFailureStore) Unalerted(ctx context.Context, correlationId string) ([]models.SyncFailureRecord, error) {
	var recs []models.SyncFailureRecord
	err := s.db.WithContext(ctx).
		Where("correlation_id = ? AND alerted = ?", correlationId, false).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

func (s *gormFailureStore) MarkAlerted(ctx context.Context, correlationId string) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncFailureRecord{}).
		Where("correlation_id = ? AND alerted = ?", correlationId, false).
		Update("alerted", true).Error
}

func (s *gormFailureStore) StaleCorrelationIds(ctx context.Context, deadline time.Time) ([]string, error) {
	var cids []string
	err := s.db.WithContext(ctx).
		Model(&models.SyncFailureRecord{}).
		Distinct("correlation_id").
		Where("alerted = ? AND created_at <= ?", false, deadline).
		Pluck("correlation_id", &cids).Error
	return cids, err
}

// Collector batches dead-letter failures per correlation id. One producer
// action fans out into several entries; when they fail together the operator
// gets one alert naming all of them, not one alert per entry.
type Collector struct {
	Failures FailureStore
	Sink     AlertSink
	Logger   *logrus.Logger

	// FlushAfter is how long a correlation group must stay quiet before it
	// flushes. Dead letters trickle in as retries exhaust, so the window is
	// measured from the last collected failure, not the first.
	FlushAfter    time.Duration
	CheckInterval time.Duration

	mu     sync.Mutex
	lastAt map[string]time.Time
}

func NewCollector(failures FailureStore, sink AlertSink, logger *logrus.Logger) *Collector {
	return &Collector{
		Failures:      failures,
		Sink:          sink,
		Logger:        logger,
		FlushAfter:    30 * time.Second,
		CheckInterval: 10 * time.Second,
		lastAt:        map[string]time.Time{},
	}
}

// Collect records one failure and (re)arms the flush window for its
// correlation id. Never blocks on the sink.
func (c *Collector) Collect(ctx context.Context, f Failure) {
	rec := models.SyncFailureRecord{
		CorrelationId: f.CorrelationId,
		EntryId:       f.EntryId,
		EntityType:    f.EntityType,
		EntityId:      f.EntityId,
		Operation:     f.Operation,
		ErrorClass:    f.ErrorClass,
		Message:       f.Message,
	}
	if err := c.Failures.Append(ctx, rec); err != nil && c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{
			"field":          "SyncCollector",
			"correlation_id": f.CorrelationId,
			"entry_id":       f.EntryId,
		}).Error("failed to persist failure record: " + err.Error())
	}

	c.mu.Lock()
	c.lastAt[f.CorrelationId] = time.Now()
	c.mu.Unlock()
}

// Run flushes correlation groups that have been quiet for FlushAfter.
func (c *Collector) Run(ctx context.Context) {
	interval := c.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, cid := range c.dueGroups(ctx) {
				if err := c.Flush(ctx, cid); err != nil && c.Logger != nil {
					c.Logger.WithFields(logrus.Fields{
						"field":          "SyncCollector",
						"correlation_id": cid,
					}).Error("flush failed: " + err.Error())
				}
			}
		}
	}
}

// dueGroups is the quiet in-memory windows plus any unalerted rows old
// enough that their window must have been lost to a restart.
func (c *Collector) dueGroups(ctx context.Context) []string {
	cutoff := time.Now().Add(-c.FlushAfter)

	c.mu.Lock()
	seen := map[string]bool{}
	var due []string
	for cid, last := range c.lastAt {
		if last.Before(cutoff) {
			due = append(due, cid)
			seen[cid] = true
			delete(c.lastAt, cid)
		}
	}
	armed := make(map[string]bool, len(c.lastAt))
	for cid := range c.lastAt {
		armed[cid] = true
	}
	c.mu.Unlock()

	stale, err := c.Failures.StaleCorrelationIds(ctx, cutoff)
	if err != nil {
		if c.Logger != nil {
			c.Logger.WithFields(logrus.Fields{
				"field": "SyncCollector",
			}).Warn("stale group sweep failed: " + err.Error())
		}
		return due
	}
	for _, cid := range stale {
		if !seen[cid] && !armed[cid] {
			due = append(due, cid)
		}
	}
	return due
}

// Flush posts one consolidated alert for a correlation id. Idempotent:
// a Redis marker and the alerted flag on the records both prevent a second
// alert, so concurrent or repeated flushes cannot double-post.
func (c *Collector) Flush(ctx context.Context, correlationId string) error {
	// Single-flight across instances; best-effort when Redis is down.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "synclock:flush:"+correlationId, 30*time.Second, nil)
		if err == redislock.ErrNotObtained {
			return nil
		}
		if err == nil {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	recs, err := c.Failures.Unalerted(ctx, correlationId)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	set, err := config.SetRedisMarkerNX(ctx, "syncalert:"+correlationId, 24*time.Hour)
	if err != nil && c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{
			"field":          "SyncCollector",
			"correlation_id": correlationId,
		}).Warn("flush marker check failed; proceeding: " + err.Error())
		set = true
	}
	if !set {
		// Another instance already alerted this group; just settle the rows.
		return c.Failures.MarkAlerted(ctx, correlationId)
	}

	msg := AlertMessage{CorrelationId: correlationId}
	for _, r := range recs {
		msg.Failures = append(msg.Failures, Failure{
			CorrelationId: r.CorrelationId,
			EntryId:       r.EntryId,
			EntityType:    r.EntityType,
			EntityId:      r.EntityId,
			Operation:     r.Operation,
			ErrorClass:    r.ErrorClass,
			Message:       r.Message,
		})
	}

	if err := c.Sink.Post(ctx, msg); err != nil {
		// Sink outage: clear the marker and leave the rows unalerted so the
		// stale sweep retries the alert instead of dropping it.
		_ = config.RemoveRedisKey("syncalert:" + correlationId)
		return fmt.Errorf("failed to post alert for %s: %w", correlationId, err)
	}

	return c.Failures.MarkAlerted(ctx, correlationId)
}
