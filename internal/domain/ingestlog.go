package domain

import "time"

// IngestStatus is the outcome of a single fetch attempt.
type IngestStatus string

const (
	IngestSuccess IngestStatus = "success"
	IngestPartial IngestStatus = "partial"
	IngestFailed  IngestStatus = "failed"
)

// IngestLog is one row per fetch attempt, opened at dispatch and closed
// on completion.
type IngestLog struct {
	ID           string       `json:"id" db:"id"`
	SourceID     string       `json:"source_id" db:"source_id"`
	StartedAt    time.Time    `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at" db:"completed_at"`
	Status       IngestStatus `json:"status" db:"status"`
	ItemsFetched int          `json:"items_fetched" db:"items_fetched"`
	ItemsNew     int          `json:"items_new" db:"items_new"`
	ItemsDup     int          `json:"items_duplicate" db:"items_duplicate"`
	ErrorMessage *string      `json:"error_message" db:"error_message"`
	DurationMs   *int64       `json:"duration_ms" db:"duration_ms"`
	Metadata     *string      `json:"metadata_json" db:"metadata_json"`
}
