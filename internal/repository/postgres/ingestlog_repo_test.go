package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

func TestIngestLogRepo_Start_OpensRowWithFailedDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO ingest_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewIngestLogRepo(db)
	log, err := repo.Start(context.Background(), "src-1")

	require.NoError(t, err)
	assert.Equal(t, "src-1", log.SourceID)
	assert.Equal(t, domain.IngestFailed, log.Status)
	assert.NotEmpty(t, log.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestLogRepo_Complete_UpdatesFinalCounters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	completed := time.Now()
	duration := int64(500)
	mock.ExpectExec("UPDATE ingest_logs").
		WithArgs("log-1", completed, domain.IngestSuccess, 10, 3, 2, nil, duration, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewIngestLogRepo(db)
	err = repo.Complete(context.Background(), &domain.IngestLog{
		ID:           "log-1",
		CompletedAt:  &completed,
		Status:       domain.IngestSuccess,
		ItemsFetched: 10,
		ItemsNew:     3,
		ItemsDup:     2,
		DurationMs:   &duration,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
