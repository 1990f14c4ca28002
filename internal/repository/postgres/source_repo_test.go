package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRepo_SelectDue_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "type", "name", "owner_id", "is_private", "enabled",
		"fetch_interval_sec", "next_fetch_at", "last_fetch_at", "error_streak", "empty_streak", "config"}).
		AddRow("src-1", "RSS", "Example Feed", nil, false, true, 300, now, nil, 0, 0, []byte(`{"feed_url":"https://example.com/feed"}`))

	mock.ExpectQuery("SELECT id, type, name").WillReturnRows(rows)

	repo := NewSourceRepo(db)
	out, err := repo.SelectDue(context.Background(), now, 10)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "src-1", out[0].ID)
	assert.Equal(t, "https://example.com/feed", out[0].Config.FeedURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepo_MarkFetched_UpdatesEmptyStreak(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE sources").
		WithArgs("src-1", sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSourceRepo(db)
	err = repo.MarkFetched(context.Background(), "src-1", time.Now(), 0)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSourceRepo_OwnerForSource_PrivateReturnsOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"owner_id", "is_private"}).AddRow("user-1", true)
	mock.ExpectQuery("SELECT owner_id, is_private").WithArgs("src-1").WillReturnRows(rows)

	repo := NewSourceRepo(db)
	owner, err := repo.OwnerForSource(context.Background(), "src-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)
}

func TestSourceRepo_OwnerForSource_SharedReturnsSystem(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"owner_id", "is_private"}).AddRow(nil, false)
	mock.ExpectQuery("SELECT owner_id, is_private").WithArgs("src-1").WillReturnRows(rows)

	repo := NewSourceRepo(db)
	owner, err := repo.OwnerForSource(context.Background(), "src-1")

	require.NoError(t, err)
	assert.Equal(t, "system", owner)
}

func TestSourceRepo_Affinity_BlockedReturnsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "src-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewSourceRepo(db)
	aff, err := repo.Affinity(context.Background(), "user-1", "src-1")

	require.NoError(t, err)
	assert.Equal(t, 0.0, aff)
}

func TestSourceRepo_Affinity_DefaultsToOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "src-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT weight").
		WithArgs("user-1", "src-1").
		WillReturnError(sql.ErrNoRows)

	repo := NewSourceRepo(db)
	aff, err := repo.Affinity(context.Background(), "user-1", "src-1")

	require.NoError(t, err)
	assert.Equal(t, 1.0, aff)
}
