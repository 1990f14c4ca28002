package coalescer

import (
	"context"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/coalescer/mail"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// OutboxMaxAttempts caps retry attempts before a row is dead-lettered
// (spec.md §4.7 "Send path": ≤ 5 attempts).
const OutboxMaxAttempts = 5

// OutboxBackoffCap is the maximum backoff delay between attempts
// (spec.md §4.7: caps at 1h).
const OutboxBackoffCap = time.Hour

// OutboxEntry is one queued send. It is inserted on its own, while its
// PushDecisionRecord is still PENDING; the record is marked SENT only
// after Drain delivers the entry, in a separate statement.
type OutboxEntry struct {
	ID         string
	DecisionID string
	Message    mail.Message
	Attempts   int
	NextAttempt time.Time
}

// OutboxStore is the persistence contract for the email outbox.
type OutboxStore interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error)
	MarkSent(ctx context.Context, entryID string) error
	MarkFailedRetry(ctx context.Context, entryID string, nextAttempt time.Time, attempts int) error
	MarkDeadLettered(ctx context.Context, entryID string) error
}

// OutboxWorker drains OutboxStore and sends mail, exponentially
// backing off on SMTP/SES error (spec.md §4.7).
type OutboxWorker struct {
	store  OutboxStore
	sender mail.Sender
	decisions DecisionStore
}

// NewOutboxWorker builds an OutboxWorker.
func NewOutboxWorker(store OutboxStore, sender mail.Sender, decisions DecisionStore) *OutboxWorker {
	return &OutboxWorker{store: store, sender: sender, decisions: decisions}
}

// Drain sends up to limit due outbox entries.
func (w *OutboxWorker) Drain(ctx context.Context, now time.Time, limit int) error {
	entries, err := w.store.ClaimDue(ctx, now, limit)
	if err != nil {
		return fmt.Errorf("coalescer: claim due outbox entries: %w", err)
	}

	for _, entry := range entries {
		w.sendOne(ctx, entry, now)
	}
	return nil
}

func (w *OutboxWorker) sendOne(ctx context.Context, entry *OutboxEntry, now time.Time) {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := w.sender.Send(sendCtx, entry.Message); err != nil {
		attempts := entry.Attempts + 1
		if attempts >= OutboxMaxAttempts {
			logger.Error("coalescer: outbox entry dead-lettered", "entry_id", entry.ID, "decision_id", entry.DecisionID, "error", err.Error())
			if markErr := w.store.MarkDeadLettered(ctx, entry.ID); markErr != nil {
				logger.Error("coalescer: failed to dead-letter outbox entry", "entry_id", entry.ID, "error", markErr.Error())
			}
			if w.decisions != nil {
				_ = w.decisions.MarkFailed(ctx, entry.DecisionID)
			}
			return
		}

		next := now.Add(backoffDelay(attempts))
		if markErr := w.store.MarkFailedRetry(ctx, entry.ID, next, attempts); markErr != nil {
			logger.Error("coalescer: failed to reschedule outbox entry", "entry_id", entry.ID, "error", markErr.Error())
		}
		return
	}

	if err := w.store.MarkSent(ctx, entry.ID); err != nil {
		logger.Error("coalescer: failed to mark outbox entry sent", "entry_id", entry.ID, "error", err.Error())
		return
	}
	if w.decisions != nil {
		if err := w.decisions.MarkSent(ctx, entry.DecisionID, now); err != nil {
			logger.Error("coalescer: failed to mark decision sent", "decision_id", entry.DecisionID, "error", err.Error())
		}
	}
}

// backoffDelay is 2^attempts seconds, capped at OutboxBackoffCap
// (spec.md §4.7).
func backoffDelay(attempts int) time.Duration {
	delay := time.Duration(1<<uint(attempts)) * time.Second
	if delay > OutboxBackoffCap {
		return OutboxBackoffCap
	}
	return delay
}
