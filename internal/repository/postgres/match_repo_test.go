package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

func TestMatchRepo_Upsert_InsertsWithGeneratedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO goal_item_matches").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewMatchRepo(db)
	m := &domain.GoalItemMatch{
		GoalID:     "goal-1",
		ItemID:     "item-1",
		MatchScore: 0.8,
		Features:   domain.MatchFeatures{CosSim: 0.9},
		Reasons:    domain.MatchReasons{SourceName: "Example Feed"},
		TopicKey:   "tk1",
		ItemTime:   time.Now(),
		ComputedAt: time.Now(),
	}

	err = repo.Upsert(context.Background(), m)

	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRepo_GetByGoalAndItem_UnmarshalsFeaturesAndReasons(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "goal_id", "item_id", "match_score", "features_json", "reasons_json",
		"topic_key", "item_time", "computed_at"}).
		AddRow("match-1", "goal-1", "item-1", 0.8, []byte(`{"cos_sim":0.9}`), []byte(`{"source_name":"Example Feed"}`),
			"tk1", now, now)

	mock.ExpectQuery("SELECT id, goal_id, item_id, match_score").
		WithArgs("goal-1", "item-1").
		WillReturnRows(rows)

	repo := NewMatchRepo(db)
	m, err := repo.GetByGoalAndItem(context.Background(), "goal-1", "item-1")

	require.NoError(t, err)
	require.Equal(t, 0.9, m.Features.CosSim)
	require.Equal(t, "Example Feed", m.Reasons.SourceName)
}
