package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/dida1024/sentrycore/internal/domain"
)

// ItemRepo implements ingest.ItemStore and embedding.ItemStore against
// PostgreSQL.
type ItemRepo struct{ db *sql.DB }

// NewItemRepo builds an ItemRepo.
func NewItemRepo(db *sql.DB) *ItemRepo { return &ItemRepo{db: db} }

// CreateIfNotExists performs the conditional insert keyed on url_hash
// that makes ingestion idempotent (spec.md §4.2, §8 property 2).
func (r *ItemRepo) CreateIfNotExists(ctx context.Context, item *domain.Item) (*domain.Item, bool, error) {
	if item.ID == "" {
		item.ID = newUUID()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, source_id, url, url_hash, topic_key, title, snippet, summary,
		                    published_at, ingested_at, embedding_status, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (url_hash) DO NOTHING
	`, item.ID, item.SourceID, item.URL, item.URLHash, item.TopicKey, item.Title, item.Snippet,
		item.Summary, item.PublishedAt, item.IngestedAt, domain.EmbeddingPending, item.RawData)
	if err != nil {
		return nil, false, fmt.Errorf("create item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create item rows affected: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	item.EmbeddingStatus = domain.EmbeddingPending
	return item, true, nil
}

// SelectPendingEmbedding returns up to limit Items awaiting embedding.
func (r *ItemRepo) SelectPendingEmbedding(ctx context.Context, limit int) ([]*domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, url, url_hash, topic_key, title, snippet, summary,
		       published_at, ingested_at, embedding_status, embedding_model
		FROM items
		WHERE embedding_status = $1 AND is_deleted = false
		ORDER BY ingested_at ASC
		LIMIT $2
	`, domain.EmbeddingPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending embedding: %w", err)
	}
	defer rows.Close()

	var out []*domain.Item
	for rows.Next() {
		it := &domain.Item{}
		if err := rows.Scan(&it.ID, &it.SourceID, &it.URL, &it.URLHash, &it.TopicKey, &it.Title,
			&it.Snippet, &it.Summary, &it.PublishedAt, &it.IngestedAt, &it.EmbeddingStatus, &it.EmbeddingModel); err != nil {
			return nil, fmt.Errorf("scan pending item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkEmbedded persists a computed embedding and flips embedding_status
// to done.
func (r *ItemRepo) MarkEmbedded(ctx context.Context, itemID string, vector pgvector.Vector, model string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE items SET embedding = $2, embedding_model = $3, embedding_status = $4
		WHERE id = $1
	`, itemID, vector, model, domain.EmbeddingDone)
	if err != nil {
		return fmt.Errorf("mark item embedded %s: %w", itemID, err)
	}
	return nil
}

// MarkEmbeddingStatus sets embedding_status without touching the vector
// column, used for the skipped_budget and failed outcomes.
func (r *ItemRepo) MarkEmbeddingStatus(ctx context.Context, itemID string, status domain.EmbeddingStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE items SET embedding_status = $2 WHERE id = $1`, itemID, status)
	if err != nil {
		return fmt.Errorf("mark item embedding status %s: %w", itemID, err)
	}
	return nil
}

// GetByID loads a single Item, excluding its embedding vector (callers
// that need the vector use GetEmbedding, since an item pending
// embedding has no vector to scan).
func (r *ItemRepo) GetByID(ctx context.Context, itemID string) (*domain.Item, error) {
	it := &domain.Item{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, url, url_hash, topic_key, title, snippet, summary,
		       published_at, ingested_at, embedding_status, embedding_model
		FROM items WHERE id = $1
	`, itemID).Scan(&it.ID, &it.SourceID, &it.URL, &it.URLHash, &it.TopicKey, &it.Title,
		&it.Snippet, &it.Summary, &it.PublishedAt, &it.IngestedAt, &it.EmbeddingStatus, &it.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return it, nil
}

// GetEmbedding loads an already-embedded Item's vector, used by the
// match engine (spec.md §4.5 requires embedding IS NOT NULL).
func (r *ItemRepo) GetEmbedding(ctx context.Context, itemID string) (*pgvector.Vector, error) {
	var emb pgvector.Vector
	err := r.db.QueryRowContext(ctx,
		`SELECT embedding FROM items WHERE id = $1 AND embedding IS NOT NULL`, itemID,
	).Scan(&emb)
	if err != nil {
		return nil, fmt.Errorf("get item embedding %s: %w", itemID, err)
	}
	return &emb, nil
}
