// Package postgres implements every repository interface against
// PostgreSQL using database/sql and lib/pq, following the teacher's
// raw-SQL CRUD style (see internal/repository/postgres in the reference
// pack): no ORM, $N placeholders, explicit Scan/Exec, errors wrapped
// with fmt.Errorf.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dida1024/sentrycore/internal/domain"
)

// SourceRepo implements fetch.SourceStore against PostgreSQL.
type SourceRepo struct{ db *sql.DB }

// NewSourceRepo builds a SourceRepo.
func NewSourceRepo(db *sql.DB) *SourceRepo { return &SourceRepo{db: db} }

// SelectDue returns up to limit due Sources, locking each row with
// FOR UPDATE SKIP LOCKED so concurrent scheduler replicas never pick the
// same Source (spec.md §4.1, §5).
func (r *SourceRepo) SelectDue(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, name, owner_id, is_private, enabled, fetch_interval_sec,
		       next_fetch_at, last_fetch_at, error_streak, empty_streak, config
		FROM sources
		WHERE enabled = true AND is_deleted = false
		  AND (next_fetch_at IS NULL OR next_fetch_at <= $1)
		ORDER BY next_fetch_at ASC NULLS FIRST
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due sources: %w", err)
	}
	defer rows.Close()

	var out []*domain.Source
	for rows.Next() {
		s := &domain.Source{}
		var configJSON []byte
		if err := rows.Scan(&s.ID, &s.Type, &s.Name, &s.OwnerID, &s.IsPrivate, &s.Enabled,
			&s.FetchIntervalSec, &s.NextFetchAt, &s.LastFetchAt, &s.ErrorStreak, &s.EmptyStreak, &configJSON); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if err := unmarshalJSON(configJSON, &s.Config); err != nil {
			return nil, fmt.Errorf("decode source config %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID loads a single Source regardless of its fetch schedule, used
// by the operator CLI to force an out-of-band fetch.
func (r *SourceRepo) GetByID(ctx context.Context, sourceID string) (*domain.Source, error) {
	s := &domain.Source{}
	var configJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, type, name, owner_id, is_private, enabled, fetch_interval_sec,
		       next_fetch_at, last_fetch_at, error_streak, empty_streak, config
		FROM sources
		WHERE id = $1
	`, sourceID).Scan(&s.ID, &s.Type, &s.Name, &s.OwnerID, &s.IsPrivate, &s.Enabled,
		&s.FetchIntervalSec, &s.NextFetchAt, &s.LastFetchAt, &s.ErrorStreak, &s.EmptyStreak, &configJSON)
	if err != nil {
		return nil, fmt.Errorf("get source %s: %w", sourceID, err)
	}
	if err := unmarshalJSON(configJSON, &s.Config); err != nil {
		return nil, fmt.Errorf("decode source config %s: %w", sourceID, err)
	}
	return s, nil
}

// MarkFetched records a successful fetch: sets last_fetch_at, resets
// error_streak, and increments empty_streak when itemCount is 0 (else
// resets it). It does not change next_fetch_at.
func (r *SourceRepo) MarkFetched(ctx context.Context, sourceID string, now time.Time, itemCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET last_fetch_at = $2, error_streak = 0,
		    empty_streak = CASE WHEN $3 = 0 THEN empty_streak + 1 ELSE 0 END
		WHERE id = $1
	`, sourceID, now, itemCount)
	if err != nil {
		return fmt.Errorf("mark source fetched %s: %w", sourceID, err)
	}
	return nil
}

// MarkFailed records a failed fetch attempt and the next retry time.
func (r *SourceRepo) MarkFailed(ctx context.Context, sourceID string, now time.Time, nextFetchAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET error_streak = error_streak + 1, next_fetch_at = $2
		WHERE id = $1
	`, sourceID, nextFetchAt)
	if err != nil {
		return fmt.Errorf("mark source failed %s: %w", sourceID, err)
	}
	return nil
}

// OwnerForSource implements embedding.SourceOwnerLookup: private sources
// bill to their owner, everything else bills to the shared system
// bucket (spec.md §4.4).
func (r *SourceRepo) OwnerForSource(ctx context.Context, sourceID string) (string, error) {
	var ownerID sql.NullString
	var isPrivate bool
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_id, is_private FROM sources WHERE id = $1`, sourceID,
	).Scan(&ownerID, &isPrivate)
	if err != nil {
		return "", fmt.Errorf("owner for source %s: %w", sourceID, err)
	}
	if isPrivate && ownerID.Valid {
		return ownerID.String, nil
	}
	return "system", nil
}

// SourceName resolves a Source's display name, used by the match engine
// to populate MatchReasons.SourceName.
func (r *SourceRepo) SourceName(ctx context.Context, sourceID string) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM sources WHERE id = $1`, sourceID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("source name %s: %w", sourceID, err)
	}
	return name, nil
}

// Affinity computes the source-affinity multiplier for (userID,
// sourceID): 0 if the user blocked the source, else any explicit
// per-source weight, defaulting to 1.0 (spec.md §4.5).
func (r *SourceRepo) Affinity(ctx context.Context, userID, sourceID string) (float64, error) {
	var blocked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM blocked_sources WHERE user_id = $1 AND source_id = $2)`,
		userID, sourceID,
	).Scan(&blocked)
	if err != nil {
		return 0, fmt.Errorf("check blocked source: %w", err)
	}
	if blocked {
		return 0, nil
	}

	var weight sql.NullFloat64
	err = r.db.QueryRowContext(ctx,
		`SELECT weight FROM source_affinities WHERE user_id = $1 AND source_id = $2`,
		userID, sourceID,
	).Scan(&weight)
	switch {
	case err == sql.ErrNoRows:
		return 1.0, nil
	case err != nil:
		return 0, fmt.Errorf("source affinity: %w", err)
	case weight.Valid:
		return weight.Float64, nil
	default:
		return 1.0, nil
	}
}

func newUUID() string { return uuid.New().String() }
