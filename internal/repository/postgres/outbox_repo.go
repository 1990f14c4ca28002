package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/coalescer"
	"github.com/dida1024/sentrycore/internal/coalescer/mail"
)

// OutboxRepo implements coalescer.OutboxStore against PostgreSQL.
type OutboxRepo struct{ db *sql.DB }

// NewOutboxRepo builds an OutboxRepo.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// Enqueue inserts a new outbox row ready for immediate delivery,
// called by the batch/digest/immediate coalescer stages once a
// rendered mail.Message is ready.
func (r *OutboxRepo) Enqueue(ctx context.Context, decisionID string, msg mail.Message, readyAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outbox_entries (id, decision_id, mail_from, mail_to, subject, text_body, html_body,
		                              attempts, next_attempt)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
	`, newUUID(), decisionID, msg.From, msg.To, msg.Subject, msg.TextBody, msg.HTMLBody, readyAt)
	if err != nil {
		return fmt.Errorf("enqueue outbox entry for decision %s: %w", decisionID, err)
	}
	return nil
}

// ClaimDue selects and locks up to limit due outbox rows.
func (r *OutboxRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*coalescer.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, decision_id, mail_from, mail_to, subject, text_body, html_body, attempts, next_attempt
		FROM outbox_entries
		WHERE next_attempt <= $1
		ORDER BY next_attempt ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox entries: %w", err)
	}
	defer rows.Close()

	var out []*coalescer.OutboxEntry
	for rows.Next() {
		e := &coalescer.OutboxEntry{}
		if err := rows.Scan(&e.ID, &e.DecisionID, &e.Message.From, &e.Message.To, &e.Message.Subject,
			&e.Message.TextBody, &e.Message.HTMLBody, &e.Attempts, &e.NextAttempt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSent deletes a successfully delivered outbox row.
func (r *OutboxRepo) MarkSent(ctx context.Context, entryID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM outbox_entries WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("mark outbox entry sent %s: %w", entryID, err)
	}
	return nil
}

// MarkFailedRetry reschedules a failed send with the computed backoff.
func (r *OutboxRepo) MarkFailedRetry(ctx context.Context, entryID string, nextAttempt time.Time, attempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_entries SET attempts = $2, next_attempt = $3 WHERE id = $1`,
		entryID, attempts, nextAttempt)
	if err != nil {
		return fmt.Errorf("mark outbox entry retry %s: %w", entryID, err)
	}
	return nil
}

// MarkDeadLettered moves an exhausted outbox row to the dead-letter
// table for operator inspection rather than dropping it silently.
func (r *OutboxRepo) MarkDeadLettered(ctx context.Context, entryID string) error {
	_, err := r.db.ExecContext(ctx, `
		WITH moved AS (
			DELETE FROM outbox_entries WHERE id = $1
			RETURNING id, decision_id, mail_from, mail_to, subject, text_body, html_body, attempts
		)
		INSERT INTO outbox_dead_letters (id, decision_id, mail_from, mail_to, subject, text_body, html_body, attempts, dead_lettered_at)
		SELECT id, decision_id, mail_from, mail_to, subject, text_body, html_body, attempts, now() FROM moved
	`, entryID)
	if err != nil {
		return fmt.Errorf("mark outbox entry dead-lettered %s: %w", entryID, err)
	}
	return nil
}
