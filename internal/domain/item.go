package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingStatus tracks an Item's progress through the embedding worker.
type EmbeddingStatus string

const (
	EmbeddingPending       EmbeddingStatus = "pending"
	EmbeddingDone          EmbeddingStatus = "done"
	EmbeddingSkippedBudget EmbeddingStatus = "skipped_budget"
	EmbeddingFailed        EmbeddingStatus = "failed"
)

// Item is a normalised posting ingested from a Source.
type Item struct {
	ID              string          `json:"id" db:"id"`
	SourceID        string          `json:"source_id" db:"source_id"`
	URL             string          `json:"url" db:"url"`
	URLHash         string          `json:"url_hash" db:"url_hash"`
	TopicKey        string          `json:"topic_key" db:"topic_key"`
	Title           string          `json:"title" db:"title"`
	Snippet         *string         `json:"snippet" db:"snippet"`
	Summary         *string         `json:"summary" db:"summary"`
	PublishedAt     *time.Time      `json:"published_at" db:"published_at"`
	IngestedAt      time.Time       `json:"ingested_at" db:"ingested_at"`
	Embedding       *pgvector.Vector `json:"-" db:"embedding"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status" db:"embedding_status"`
	EmbeddingModel  *string         `json:"embedding_model" db:"embedding_model"`
	RawData         *string         `json:"raw_data,omitempty" db:"raw_data"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	IsDeleted       bool            `json:"is_deleted" db:"is_deleted"`
}

// ItemTime is the effective timestamp used for ordering and the Goal
// time-window filter: coalesce(published_at, ingested_at, now).
func (i *Item) ItemTime() time.Time {
	if i.PublishedAt != nil {
		return *i.PublishedAt
	}
	if !i.IngestedAt.IsZero() {
		return i.IngestedAt
	}
	return time.Now()
}

// EmbeddingText is the text the embedding provider receives: title plus
// an optional snippet, whitespace-joined.
func (i *Item) EmbeddingText() string {
	if i.Snippet == nil || *i.Snippet == "" {
		return i.Title
	}
	return i.Title + " " + *i.Snippet
}
