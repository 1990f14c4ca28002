package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

func TestGoalRepo_VisibleGoals_ScansWithoutDescriptor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "description", "status", "priority_mode",
		"time_window_days", "descriptor_embedding", "has_descriptor"}).
		AddRow("goal-1", "user-1", "Go jobs", "desc", domain.GoalActive, domain.PriorityModeSoft, 30, "[]", false)

	mock.ExpectQuery("SELECT g.id, g.user_id, g.name").WillReturnRows(rows)

	repo := NewGoalRepo(db)
	out, err := repo.VisibleGoals(context.Background(), "src-1")

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "goal-1", out[0].ID)
	assert.Nil(t, out[0].DescriptorEmbedding)
}

func TestGoalRepo_GetByID_ScansGoal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "description", "status", "priority_mode", "time_window_days"}).
		AddRow("goal-1", "user-1", "Go jobs", "desc", domain.GoalActive, domain.PriorityModeSoft, 30)

	mock.ExpectQuery("SELECT id, user_id, name, description, status, priority_mode, time_window_days").
		WithArgs("goal-1").
		WillReturnRows(rows)

	repo := NewGoalRepo(db)
	g, err := repo.GetByID(context.Background(), "goal-1")

	require.NoError(t, err)
	assert.Equal(t, "Go jobs", g.Name)
}

func TestGoalRepo_PushConfig_ScansBatchWindows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"batch_windows", "digest_send_time", "immediate_enabled", "batch_enabled", "digest_enabled"}).
		AddRow(pq.StringArray{"09:00", "17:00"}, "08:00", true, true, true)

	mock.ExpectQuery("SELECT batch_windows").WithArgs("goal-1").WillReturnRows(rows)

	repo := NewGoalRepo(db)
	cfg, err := repo.PushConfig(context.Background(), "goal-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "17:00"}, cfg.BatchWindows)
	assert.Equal(t, "08:00", cfg.DigestSendTime)
}

func TestGoalRepo_ActiveGoalsWithBatchWindow_ReturnsIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"goal_id"}).AddRow("goal-1").AddRow("goal-2")
	mock.ExpectQuery("SELECT goal_id FROM goal_push_configs").WithArgs("09:00").WillReturnRows(rows)

	repo := NewGoalRepo(db)
	out, err := repo.ActiveGoalsWithBatchWindow(context.Background(), "09:00")

	require.NoError(t, err)
	assert.Equal(t, []string{"goal-1", "goal-2"}, out)
}
