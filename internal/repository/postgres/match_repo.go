package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dida1024/sentrycore/internal/domain"
)

// MatchRepo implements match.MatchStore's Upsert against PostgreSQL.
type MatchRepo struct{ db *sql.DB }

// NewMatchRepo builds a MatchRepo.
func NewMatchRepo(db *sql.DB) *MatchRepo { return &MatchRepo{db: db} }

// Upsert writes a GoalItemMatch keyed on (goal_id, item_id): a re-score
// of the same pair replaces the prior row so there is always exactly
// one match score per pair (spec.md §4.5 "single latest score").
func (r *MatchRepo) Upsert(ctx context.Context, m *domain.GoalItemMatch) error {
	if m.ID == "" {
		m.ID = newUUID()
	}
	featuresJSON, err := marshalJSON(m.Features)
	if err != nil {
		return fmt.Errorf("marshal match features: %w", err)
	}
	reasonsJSON, err := marshalJSON(m.Reasons)
	if err != nil {
		return fmt.Errorf("marshal match reasons: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO goal_item_matches (id, goal_id, item_id, match_score, features_json, reasons_json,
		                                topic_key, item_time, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (goal_id, item_id) DO UPDATE SET
		  match_score = $4, features_json = $5, reasons_json = $6, computed_at = $9
	`, m.ID, m.GoalID, m.ItemID, m.MatchScore, featuresJSON, reasonsJSON, m.TopicKey, m.ItemTime, m.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert match goal=%s item=%s: %w", m.GoalID, m.ItemID, err)
	}
	return nil
}

// GetByGoalAndItem loads the current score for a (goal, item) pair,
// used by the decision dispatcher after a MatchComputed event to
// rehydrate the full AgentState (the event itself carries only IDs and
// a score).
func (r *MatchRepo) GetByGoalAndItem(ctx context.Context, goalID, itemID string) (*domain.GoalItemMatch, error) {
	m := &domain.GoalItemMatch{}
	var featuresJSON, reasonsJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, goal_id, item_id, match_score, features_json, reasons_json, topic_key, item_time, computed_at
		FROM goal_item_matches WHERE goal_id = $1 AND item_id = $2
	`, goalID, itemID).Scan(&m.ID, &m.GoalID, &m.ItemID, &m.MatchScore, &featuresJSON, &reasonsJSON,
		&m.TopicKey, &m.ItemTime, &m.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("get match goal=%s item=%s: %w", goalID, itemID, err)
	}
	if err := unmarshalJSON(featuresJSON, &m.Features); err != nil {
		return nil, fmt.Errorf("unmarshal match features: %w", err)
	}
	if err := unmarshalJSON(reasonsJSON, &m.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal match reasons: %w", err)
	}
	return m, nil
}
