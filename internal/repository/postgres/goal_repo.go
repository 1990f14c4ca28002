package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/dida1024/sentrycore/internal/domain"
)

// GoalRepo implements match.GoalVisibility, match.MatchStore's
// GoalOwner, and coalescer.GoalPushConfigStore against PostgreSQL.
type GoalRepo struct{ db *sql.DB }

// NewGoalRepo builds a GoalRepo.
func NewGoalRepo(db *sql.DB) *GoalRepo { return &GoalRepo{db: db} }

// VisibleGoals returns the ACTIVE Goals eligible to see Items from
// sourceID: goals owned by the source's subscribers for private
// sources, or all ACTIVE goals for shared sources (spec.md §4.5).
func (r *GoalRepo) VisibleGoals(ctx context.Context, sourceID string) ([]*domain.Goal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.id, g.user_id, g.name, g.description, g.status, g.priority_mode,
		       g.time_window_days, COALESCE(g.descriptor_embedding, '[]'), g.descriptor_embedding IS NOT NULL
		FROM goals g
		WHERE g.status = $1 AND g.is_deleted = false
		  AND (
		    NOT EXISTS (SELECT 1 FROM sources s WHERE s.id = $2 AND s.is_private = true)
		    OR EXISTS (
		      SELECT 1 FROM source_subscriptions sub
		      WHERE sub.source_id = $2 AND sub.user_id = g.user_id AND sub.enabled = true
		    )
		  )
	`, domain.GoalActive, sourceID)
	if err != nil {
		return nil, fmt.Errorf("visible goals for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var out []*domain.Goal
	for rows.Next() {
		g := &domain.Goal{}
		var descriptor pgvector.Vector
		var hasDescriptor bool
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Description, &g.Status, &g.PriorityMode,
			&g.TimeWindowDays, &descriptor, &hasDescriptor); err != nil {
			return nil, fmt.Errorf("scan visible goal: %w", err)
		}
		if hasDescriptor {
			g.DescriptorEmbedding = &descriptor
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetByID loads a single Goal, excluding its descriptor embedding (same
// nullable-vector concern as ItemRepo.GetByID; callers needing the
// vector go through the match engine's own visibility query).
func (r *GoalRepo) GetByID(ctx context.Context, goalID string) (*domain.Goal, error) {
	g := &domain.Goal{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, status, priority_mode, time_window_days
		FROM goals WHERE id = $1
	`, goalID).Scan(&g.ID, &g.UserID, &g.Name, &g.Description, &g.Status, &g.PriorityMode, &g.TimeWindowDays)
	if err != nil {
		return nil, fmt.Errorf("get goal %s: %w", goalID, err)
	}
	return g, nil
}

// PriorityTerms returns a Goal's MUST/PRIORITY/NEGATIVE keyword list.
func (r *GoalRepo) PriorityTerms(ctx context.Context, goalID string) ([]domain.GoalPriorityTerm, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, goal_id, term, term_type FROM goal_priority_terms WHERE goal_id = $1`, goalID)
	if err != nil {
		return nil, fmt.Errorf("priority terms for goal %s: %w", goalID, err)
	}
	defer rows.Close()

	var out []domain.GoalPriorityTerm
	for rows.Next() {
		var t domain.GoalPriorityTerm
		if err := rows.Scan(&t.ID, &t.GoalID, &t.Term, &t.TermType); err != nil {
			return nil, fmt.Errorf("scan priority term: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GoalOwner resolves a Goal's owning user, used for the budget lookup
// and source-affinity resolution.
func (r *GoalRepo) GoalOwner(ctx context.Context, goalID string) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx, `SELECT user_id FROM goals WHERE id = $1`, goalID).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("goal owner %s: %w", goalID, err)
	}
	return userID, nil
}

// PushConfig loads a Goal's delivery preferences.
func (r *GoalRepo) PushConfig(ctx context.Context, goalID string) (*domain.GoalPushConfig, error) {
	cfg := &domain.GoalPushConfig{GoalID: goalID}
	var windows pq.StringArray
	err := r.db.QueryRowContext(ctx, `
		SELECT batch_windows, digest_send_time, immediate_enabled, batch_enabled, digest_enabled
		FROM goal_push_configs WHERE goal_id = $1
	`, goalID).Scan(&windows, &cfg.DigestSendTime, &cfg.ImmediateEnabled, &cfg.BatchEnabled, &cfg.DigestEnabled)
	if err != nil {
		return nil, fmt.Errorf("push config for goal %s: %w", goalID, err)
	}
	cfg.BatchWindows = []string(windows)
	return cfg, nil
}

// ActiveGoalsWithBatchWindow returns goal IDs whose batch_windows
// contains hhmm and batch_enabled=true.
func (r *GoalRepo) ActiveGoalsWithBatchWindow(ctx context.Context, hhmm string) ([]string, error) {
	return r.goalIDsWhere(ctx, `
		SELECT goal_id FROM goal_push_configs
		WHERE batch_enabled = true AND $1 = ANY(batch_windows)
	`, hhmm)
}

// ActiveGoalsWithDigestTime returns goal IDs whose digest_send_time
// equals hhmm and digest_enabled=true.
func (r *GoalRepo) ActiveGoalsWithDigestTime(ctx context.Context, hhmm string) ([]string, error) {
	return r.goalIDsWhere(ctx, `
		SELECT goal_id FROM goal_push_configs
		WHERE digest_enabled = true AND digest_send_time = $1
	`, hhmm)
}

func (r *GoalRepo) goalIDsWhere(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("goal ids query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan goal id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
