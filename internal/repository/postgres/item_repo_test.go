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

func TestItemRepo_CreateIfNotExists_NewRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO items").WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewItemRepo(db)
	item := &domain.Item{SourceID: "src-1", URL: "https://example.com/a", URLHash: "h1", Title: "A", IngestedAt: time.Now()}
	created, ok, err := repo.CreateIfNotExists(context.Background(), item)

	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, created)
	assert.Equal(t, domain.EmbeddingPending, created.EmbeddingStatus)
}

func TestItemRepo_CreateIfNotExists_DuplicateURLHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO items").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewItemRepo(db)
	item := &domain.Item{SourceID: "src-1", URL: "https://example.com/a", URLHash: "h1", Title: "A", IngestedAt: time.Now()}
	created, ok, err := repo.CreateIfNotExists(context.Background(), item)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, created)
}

func TestItemRepo_SelectPendingEmbedding_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "source_id", "url", "url_hash", "topic_key", "title", "snippet",
		"summary", "published_at", "ingested_at", "embedding_status", "embedding_model"}).
		AddRow("item-1", "src-1", "https://x", "h1", "tk1", "Title", nil, nil, nil, time.Now(), domain.EmbeddingPending, nil)

	mock.ExpectQuery("SELECT id, source_id, url").WillReturnRows(rows)

	repo := NewItemRepo(db)
	out, err := repo.SelectPendingEmbedding(context.Background(), 50)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "item-1", out[0].ID)
}

func TestItemRepo_MarkEmbeddingStatus_UpdatesStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE items SET embedding_status").
		WithArgs("item-1", domain.EmbeddingFailed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewItemRepo(db)
	err = repo.MarkEmbeddingStatus(context.Background(), "item-1", domain.EmbeddingFailed)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
