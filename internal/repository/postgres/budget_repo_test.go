package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

func TestBudgetRepo_ReserveIfUnderCap_NoIdempotencyKeySkipsKeyCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO budget_daily").
		WillReturnRows(sqlmock.NewRows([]string{"embedding_tokens_est", "judge_tokens_est", "usd_est"}).
			AddRow(int64(100), int64(0), 0.5))
	mock.ExpectCommit()

	repo := NewBudgetRepo(db)
	allowed, snap, err := repo.ReserveIfUnderCap(context.Background(), "u1", "2026-07-30", domain.ReserveEmbedding, 100, 0.5, 10.0, "")

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 0.5, snap.USDEst)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBudgetRepo_ReserveIfUnderCap_DuplicateIdempotencyKeyShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT embedding_tokens_est, judge_tokens_est, usd_est FROM budget_daily").
		WillReturnRows(sqlmock.NewRows([]string{"embedding_tokens_est", "judge_tokens_est", "usd_est"}).
			AddRow(int64(0), int64(0), 1.0))
	mock.ExpectCommit()

	repo := NewBudgetRepo(db)
	allowed, snap, err := repo.ReserveIfUnderCap(context.Background(), "u1", "2026-07-30", domain.ReserveEmbedding, 100, 0.5, 10.0, "req-1")

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1.0, snap.USDEst)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBudgetRepo_ReserveIfUnderCap_HardCutoffRejectsAndReportsCurrentTotal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO budget_daily").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT embedding_tokens_est, judge_tokens_est, usd_est FROM budget_daily").
		WillReturnRows(sqlmock.NewRows([]string{"embedding_tokens_est", "judge_tokens_est", "usd_est"}).
			AddRow(int64(500), int64(0), 4.9))
	mock.ExpectCommit()

	repo := NewBudgetRepo(db)
	allowed, snap, err := repo.ReserveIfUnderCap(context.Background(), "u1", "2026-07-30", domain.ReserveEmbedding, 100, 0.5, 5.0, "")

	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 4.9, snap.USDEst)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBudgetRepo_DailyCap_FallsBackToDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT daily_cap_usd").
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	repo := NewBudgetRepo(db)
	cap, err := repo.DailyCap(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDailyCapUSD, cap)
}

func TestBudgetRepo_DailyCap_HonorsOverride(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT daily_cap_usd").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"daily_cap_usd"}).AddRow(5.0))

	repo := NewBudgetRepo(db)
	cap, err := repo.DailyCap(context.Background(), "u1")

	require.NoError(t, err)
	assert.Equal(t, 5.0, cap)
}
