package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// DecisionRepo implements decision.ProposalSink and
// coalescer.DecisionStore against PostgreSQL.
type DecisionRepo struct{ db *sql.DB }

// NewDecisionRepo builds a DecisionRepo.
func NewDecisionRepo(db *sql.DB) *DecisionRepo { return &DecisionRepo{db: db} }

// Emit persists an ActionProposal as a PENDING PushDecisionRecord
// (spec.md §4.6 Node 5).
func (r *DecisionRepo) Emit(proposal domain.ActionProposal) error {
	reasonsJSON, err := marshalJSON(proposal.Reasons)
	if err != nil {
		return fmt.Errorf("marshal decision reasons: %w", err)
	}
	_, err = r.db.Exec(`
		INSERT INTO push_decision_records (id, goal_id, item_id, topic_key, decision, status, channel,
		                                     reason_json, score, item_time, decided_at, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, newUUID(), proposal.GoalID, proposal.ItemID, proposal.TopicKey, proposal.Decision,
		domain.StatusPending, proposal.Channel, reasonsJSON, proposal.Score, proposal.ItemTime,
		proposal.DecidedAt, proposal.DedupeKey)
	if err != nil {
		return fmt.Errorf("emit decision goal=%s item=%s: %w", proposal.GoalID, proposal.ItemID, err)
	}
	return nil
}

// FindByDedupeKey looks up an existing decision for the dedupe
// mechanism (spec.md §8 property 8).
func (r *DecisionRepo) FindByDedupeKey(ctx context.Context, dedupeKey string) (*domain.PushDecisionRecord, error) {
	rec := &domain.PushDecisionRecord{}
	var reasonsJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, goal_id, item_id, topic_key, decision, status, channel, reason_json,
		       score, item_time, decided_at, sent_at, dedupe_key
		FROM push_decision_records WHERE dedupe_key = $1
	`, dedupeKey).Scan(&rec.ID, &rec.GoalID, &rec.ItemID, &rec.TopicKey, &rec.Decision, &rec.Status,
		&rec.Channel, &reasonsJSON, &rec.Score, &rec.ItemTime, &rec.DecidedAt, &rec.SentAt, &rec.DedupeKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find decision by dedupe key: %w", err)
	}
	if err := unmarshalJSON(reasonsJSON, &rec.Reasons); err != nil {
		return nil, fmt.Errorf("decode decision reasons: %w", err)
	}
	return rec, nil
}

// MarkSent marks a decision delivered.
func (r *DecisionRepo) MarkSent(ctx context.Context, decisionID string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE push_decision_records SET status = $2, sent_at = $3 WHERE id = $1`,
		decisionID, domain.StatusSent, sentAt)
	if err != nil {
		return fmt.Errorf("mark decision sent %s: %w", decisionID, err)
	}
	return nil
}

// MarkFailed marks a decision permanently failed (outbox exhausted its
// retries).
func (r *DecisionRepo) MarkFailed(ctx context.Context, decisionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE push_decision_records SET status = $2 WHERE id = $1`, decisionID, domain.StatusFailed)
	if err != nil {
		return fmt.Errorf("mark decision failed %s: %w", decisionID, err)
	}
	return nil
}

// MarkSkipped sets a decision's status to SKIPPED.
func (r *DecisionRepo) MarkSkipped(ctx context.Context, decisionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE push_decision_records SET status = $2 WHERE id = $1`, decisionID, domain.StatusSkipped)
	if err != nil {
		return fmt.Errorf("mark decision skipped %s: %w", decisionID, err)
	}
	return nil
}

// DrainBatch selects and claims this goal's pending BATCH records since
// the previous window, ranked score DESC, item_time DESC, capped at 3
// (spec.md §4.7).
func (r *DecisionRepo) DrainBatch(ctx context.Context, goalID string, since time.Time) ([]*domain.PushDecisionRecord, error) {
	return r.drain(ctx, goalID, domain.DecisionBatch, since, 3)
}

// DrainDigest selects and claims this goal's pending DIGEST records
// since the digest window start, ranked and capped at topN (spec.md
// §4.7).
func (r *DecisionRepo) DrainDigest(ctx context.Context, goalID string, since time.Time, topN int) ([]*domain.PushDecisionRecord, error) {
	return r.drain(ctx, goalID, domain.DecisionDigest, since, topN)
}

func (r *DecisionRepo) drain(ctx context.Context, goalID string, bucket domain.DecisionBucket, since time.Time, limit int) ([]*domain.PushDecisionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, goal_id, item_id, topic_key, decision, status, channel, reason_json,
		       score, item_time, decided_at, sent_at, dedupe_key
		FROM push_decision_records
		WHERE goal_id = $1 AND decision = $2 AND status = $3 AND decided_at >= $4
		ORDER BY score DESC, item_time DESC
		LIMIT $5
		FOR UPDATE SKIP LOCKED
	`, goalID, bucket, domain.StatusPending, since, limit)
	if err != nil {
		return nil, fmt.Errorf("drain %s for goal %s: %w", bucket, goalID, err)
	}
	defer rows.Close()

	var out []*domain.PushDecisionRecord
	for rows.Next() {
		rec := &domain.PushDecisionRecord{}
		var reasonsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.GoalID, &rec.ItemID, &rec.TopicKey, &rec.Decision, &rec.Status,
			&rec.Channel, &reasonsJSON, &rec.Score, &rec.ItemTime, &rec.DecidedAt, &rec.SentAt, &rec.DedupeKey); err != nil {
			return nil, fmt.Errorf("scan drained decision: %w", err)
		}
		if err := unmarshalJSON(reasonsJSON, &rec.Reasons); err != nil {
			return nil, fmt.Errorf("decode drained decision reasons: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
