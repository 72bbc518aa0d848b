package bubblesync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("splitlease-bubblesync")

// Failure is what the worker hands the collector when an entry dead-letters.
type Failure struct {
	CorrelationId string
	EntryId       string
	EntityType    string
	EntityId      string
	Operation     string
	ErrorClass    string
	Message       string
}

// FailureCollector batches dead-letter failures per correlation id.
// Collect must never block the worker on the alert sink.
type FailureCollector interface {
	Collect(ctx context.Context, f Failure)
}

// Worker resolves one claimed entry per call: invoke the legacy workflow,
// classify the outcome, and write exactly one state transition back.
type Worker struct {
	Store     Store
	Invoker   WorkflowInvoker
	Collector FailureCollector
	Retry     *RetryPolicy
	Logger    *logrus.Logger

	// CallTimeout bounds each legacy invocation on top of the client's own
	// transport timeout. The legacy call is the only external I/O in the
	// pipeline; it must never hang a pool slot indefinitely.
	CallTimeout time.Duration
}

func NewWorker(store Store, invoker WorkflowInvoker, collector FailureCollector, logger *logrus.Logger) *Worker {
	return &Worker{
		Store:       store,
		Invoker:     invoker,
		Collector:   collector,
		Retry:       DefaultRetryPolicy(),
		Logger:      logger,
		CallTimeout: 25 * time.Second,
	}
}

// Process handles one in_flight entry. The entry must already be claimed by
// the calling dispatcher.
func (w *Worker) Process(ctx context.Context, entry models.SyncQueueEntry) {
	ctx, span := tracer.Start(ctx, "bubblesync.attempt", trace.WithAttributes(
		attribute.String("entry.id", entry.ID),
		attribute.String("entry.entity_type", entry.EntityType),
		attribute.String("entry.entity_id", entry.EntityId),
		attribute.String("entry.operation", entry.Operation),
		attribute.Int("entry.attempt", entry.AttemptCount),
	))
	defer span.End()

	now := time.Now().UTC()

	req, err := BuildWorkflowRequest(&entry)
	if err != nil {
		// Undecodable payloads are poison: no retry can fix a snapshot that
		// does not parse.
		span.SetStatus(codes.Error, "bad payload")
		// No call was made, so no attempt was consumed.
		w.deadLetter(ctx, entry, ErrorClassTerminal, err.Error(), entry.AttemptCount, now)
		return
	}

	callCtx := ctx
	if w.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, w.CallTimeout)
		defer cancel()
	}

	err = w.Invoker.Invoke(callCtx, req)
	if err == nil {
		if markErr := w.Store.MarkSucceeded(ctx, entry.ID, now); markErr != nil {
			w.logEntryError(entry, "failed to mark entry succeeded", markErr)
			return
		}
		if w.Logger != nil {
			w.Logger.WithFields(logrus.Fields{
				"field":       "SyncWorker",
				"entry_id":    entry.ID,
				"entity_type": entry.EntityType,
				"entity_id":   entry.EntityId,
				"workflow":    req.WorkflowName,
				"attempt":     entry.AttemptCount,
			}).Info("entry propagated to legacy platform")
		}
		return
	}

	span.SetStatus(codes.Error, err.Error())

	attempts := entry.AttemptCount + 1

	if !IsRetryable(err) {
		w.deadLetter(ctx, entry, ErrorClassTerminal, err.Error(), attempts, now)
		return
	}

	if attempts >= entry.MaxAttempts {
		w.deadLetter(ctx, entry, ErrorClassExhausted, err.Error(), attempts, now)
		return
	}

	next := now.Add(w.Retry.NextDelay(attempts))
	if reschedErr := w.Store.Reschedule(ctx, entry.ID, attempts, next, err.Error()); reschedErr != nil {
		w.logEntryError(entry, "failed to reschedule entry", reschedErr)
		return
	}
	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"field":           "SyncWorker",
			"entry_id":        entry.ID,
			"entity_type":     entry.EntityType,
			"entity_id":       entry.EntityId,
			"workflow":        req.WorkflowName,
			"attempt":         attempts,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Warn("legacy workflow call failed; rescheduled: " + err.Error())
	}
}

func (w *Worker) deadLetter(ctx context.Context, entry models.SyncQueueEntry, class string, errMsg string, attempts int, now time.Time) {
	reason := models.DeadLetterReasonRejected
	if class == ErrorClassExhausted {
		reason = models.DeadLetterReasonExhausted
	}
	if err := w.Store.DeadLetter(ctx, entry.ID, reason, errMsg, attempts, now); err != nil {
		w.logEntryError(entry, "failed to dead-letter entry", err)
		return
	}

	if w.Logger != nil {
		w.Logger.WithFields(logrus.Fields{
			"field":       "SyncWorker",
			"entry_id":    entry.ID,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityId,
			"operation":   entry.Operation,
			"reason":      reason,
			"attempt":     attempts,
		}).Error("entry dead-lettered: " + errMsg)
	}

	if w.Collector != nil {
		w.Collector.Collect(ctx, Failure{
			CorrelationId: entry.CorrelationId,
			EntryId:       entry.ID,
			EntityType:    entry.EntityType,
			EntityId:      entry.EntityId,
			Operation:     entry.Operation,
			ErrorClass:    class,
			Message:       errMsg,
		})
	}
}

func (w *Worker) logEntryError(entry models.SyncQueueEntry, msg string, err error) {
	if w.Logger == nil {
		return
	}
	w.Logger.WithFields(logrus.Fields{
		"field":       "SyncWorker",
		"entry_id":    entry.ID,
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityId,
	}).Error(msg + ": " + err.Error())
}
