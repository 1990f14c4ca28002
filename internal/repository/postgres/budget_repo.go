package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dida1024/sentrycore/internal/domain"
)

// BudgetRepo implements budget.CounterStore against PostgreSQL.
type BudgetRepo struct{ db *sql.DB }

// NewBudgetRepo builds a BudgetRepo.
func NewBudgetRepo(db *sql.DB) *BudgetRepo { return &BudgetRepo{db: db} }

// ReserveIfUnderCap atomically checks and increments a user's daily
// counter in one conditional UPDATE (INSERT ... ON CONFLICT DO UPDATE
// ... WHERE), so two concurrent reservations can never both succeed
// past cap: whichever commits first moves usd_est, and the second
// evaluates the WHERE clause against the already-updated row (spec.md
// §4.8 "conditional update", §8 property 5). Idempotency key handling
// ignores the request entirely if the key was already applied.
func (r *BudgetRepo) ReserveIfUnderCap(ctx context.Context, userID, date string, kind domain.ReserveKind, tokens int64, usd float64, cap float64, idempotencyKey string) (bool, domain.BudgetDaily, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, domain.BudgetDaily{}, fmt.Errorf("begin budget reserve tx: %w", err)
	}
	defer tx.Rollback()

	if idempotencyKey != "" {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM budget_idempotency_keys WHERE key = $1)`, idempotencyKey,
		).Scan(&exists)
		if err != nil {
			return false, domain.BudgetDaily{}, fmt.Errorf("check idempotency key: %w", err)
		}
		if exists {
			snap, err := r.snapshotTx(ctx, tx, userID, date)
			if err != nil {
				return false, domain.BudgetDaily{}, err
			}
			return true, snap, tx.Commit()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budget_idempotency_keys (key, created_at) VALUES ($1, now())`, idempotencyKey,
		); err != nil {
			return false, domain.BudgetDaily{}, fmt.Errorf("record idempotency key: %w", err)
		}
	}

	embeddingTokens, judgeTokens := int64(0), int64(0)
	if kind == domain.ReserveEmbedding {
		embeddingTokens = tokens
	} else {
		judgeTokens = tokens
	}

	b := domain.BudgetDaily{UserID: userID, Date: date}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO budget_daily (user_id, date, embedding_tokens_est, judge_tokens_est, usd_est)
		SELECT $1, $2, $3, $4, $5
		WHERE $5 < $6
		ON CONFLICT (user_id, date) DO UPDATE SET
		  embedding_tokens_est = budget_daily.embedding_tokens_est + $3,
		  judge_tokens_est = budget_daily.judge_tokens_est + $4,
		  usd_est = budget_daily.usd_est + $5
		WHERE budget_daily.usd_est + $5 < $6
		RETURNING embedding_tokens_est, judge_tokens_est, usd_est
	`, userID, date, embeddingTokens, judgeTokens, usd, cap).Scan(&b.EmbeddingTokensEst, &b.JudgeTokensEst, &b.USDEst)

	switch {
	case err == sql.ErrNoRows:
		// Hard cutoff: the conditional update applied to no row, so
		// nothing was recorded. Report the row's current value, if any.
		row := tx.QueryRowContext(ctx,
			`SELECT embedding_tokens_est, judge_tokens_est, usd_est FROM budget_daily WHERE user_id = $1 AND date = $2`,
			userID, date,
		)
		if scanErr := row.Scan(&b.EmbeddingTokensEst, &b.JudgeTokensEst, &b.USDEst); scanErr != nil && scanErr != sql.ErrNoRows {
			return false, domain.BudgetDaily{}, fmt.Errorf("read budget snapshot after rejected reserve: %w", scanErr)
		}
		return false, b, tx.Commit()
	case err != nil:
		return false, domain.BudgetDaily{}, fmt.Errorf("reserve budget for user %s: %w", userID, err)
	}

	return true, b, tx.Commit()
}

// Snapshot returns (creating if absent) a user's counter row for date.
func (r *BudgetRepo) Snapshot(ctx context.Context, userID, date string) (domain.BudgetDaily, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_daily (user_id, date, embedding_tokens_est, judge_tokens_est, usd_est)
		VALUES ($1, $2, 0, 0, 0)
		ON CONFLICT (user_id, date) DO NOTHING
	`, userID, date)
	if err != nil {
		return domain.BudgetDaily{}, fmt.Errorf("insert-if-absent budget snapshot: %w", err)
	}

	b := domain.BudgetDaily{UserID: userID, Date: date}
	err = r.db.QueryRowContext(ctx,
		`SELECT embedding_tokens_est, judge_tokens_est, usd_est FROM budget_daily WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&b.EmbeddingTokensEst, &b.JudgeTokensEst, &b.USDEst)
	if err != nil {
		return domain.BudgetDaily{}, fmt.Errorf("read budget snapshot: %w", err)
	}
	return b, nil
}

func (r *BudgetRepo) snapshotTx(ctx context.Context, tx *sql.Tx, userID, date string) (domain.BudgetDaily, error) {
	b := domain.BudgetDaily{UserID: userID, Date: date}
	err := tx.QueryRowContext(ctx,
		`SELECT embedding_tokens_est, judge_tokens_est, usd_est FROM budget_daily WHERE user_id = $1 AND date = $2`,
		userID, date,
	).Scan(&b.EmbeddingTokensEst, &b.JudgeTokensEst, &b.USDEst)
	if err != nil {
		return domain.BudgetDaily{}, fmt.Errorf("read budget snapshot in tx: %w", err)
	}
	return b, nil
}

// DailyCap returns a user's effective daily cap in USD, honoring a
// per-user override and falling back to the global default.
func (r *BudgetRepo) DailyCap(ctx context.Context, userID string) (float64, error) {
	var cap sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT daily_cap_usd FROM user_budget_overrides WHERE user_id = $1`, userID,
	).Scan(&cap)
	switch {
	case err == sql.ErrNoRows:
		return domain.DefaultDailyCapUSD, nil
	case err != nil:
		return 0, fmt.Errorf("daily cap for user %s: %w", userID, err)
	case cap.Valid:
		return cap.Float64, nil
	default:
		return domain.DefaultDailyCapUSD, nil
	}
}
