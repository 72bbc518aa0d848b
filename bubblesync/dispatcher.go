package bubblesync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/models"
)

// Dispatcher selects due entries, enforces one in-flight entry per entity,
// and fans claimed entries out to a bounded worker pool. Multiple instances
// may run concurrently; the conditional claim in the store is the only
// coordination between them.
type Dispatcher struct {
	Store        Store
	Worker       *Worker
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize    int
	PollInterval time.Duration
	ClaimTTL     time.Duration
	Concurrency  int

	nudge chan struct{}
}

func NewDispatcher(store Store, worker *Worker, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		Store:        store,
		Worker:       worker,
		Logger:       logger,
		DispatcherID: uuid.NewString(),
		BatchSize:    50,
		PollInterval: 2 * time.Second,
		ClaimTTL:     60 * time.Second,
		Concurrency:  8,
		nudge:        make(chan struct{}, 1),
	}
}

// Nudge requests an immediate dispatch pass (e.g. from the Pub/Sub push
// endpoint right after a producer commits). Coalesces when one is pending.
func (d *Dispatcher) Nudge() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-d.nudge:
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce runs a single pass and returns how many entries it handed to
// workers. A pass claims at most one entry per entity; the next pass picks up
// whatever became eligible meanwhile.
func (d *Dispatcher) DispatchOnce(ctx context.Context) int {
	now := time.Now().UTC()

	if d.ClaimTTL > 0 {
		if n, err := d.Store.ReclaimStale(ctx, now.Add(-d.ClaimTTL)); err != nil {
			d.logError("failed to reclaim stale claims", err)
		} else if n > 0 && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":      "SyncDispatcher",
				"dispatcher": d.DispatcherID,
				"reclaimed":  n,
			}).Warn("reclaimed stale in-flight entries")
		}
	}

	due, err := d.Store.DueEntries(ctx, now, d.BatchSize)
	if err != nil {
		d.logError("failed to select due entries", err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	inFlight, err := d.Store.InFlightKeys(ctx)
	if err != nil {
		d.logError("failed to load in-flight keys", err)
		return 0
	}

	// due holds at most each entity's oldest pending entry (the store holds
	// back entities whose oldest entry is still in backoff); an entity with
	// an unresolved claim is skipped entirely this pass.
	candidates := make([]models.SyncQueueEntry, 0, len(due))
	seen := make(map[string]struct{}, len(due))
	for i := range due {
		key := due[i].EntityKey()
		if _, busy := inFlight[key]; busy {
			continue
		}
		if _, taken := seen[key]; taken {
			continue
		}
		seen[key] = struct{}{}
		candidates = append(candidates, due[i])
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	dispatched := 0

	for i := range candidates {
		entry := candidates[i]
		if err := d.Store.Claim(ctx, entry.ID, d.DispatcherID, now); err != nil {
			if errors.Is(err, ErrClaimLost) {
				// Another instance got there first. Not an error.
				continue
			}
			d.logError("failed to claim entry "+entry.ID, err)
			continue
		}
		entry.Status = models.SyncStatusInFlight

		dispatched++
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d.Worker.Process(ctx, entry)
		}()
	}

	wg.Wait()
	return dispatched
}

func (d *Dispatcher) logError(msg string, err error) {
	if d.Logger == nil {
		return
	}
	d.Logger.WithFields(logrus.Fields{
		"field":      "SyncDispatcher",
		"dispatcher": d.DispatcherID,
	}).Error(msg + ": " + err.Error())
}
