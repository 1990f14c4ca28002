package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// IngestLogRepo implements ingest.IngestLogStore against PostgreSQL.
type IngestLogRepo struct{ db *sql.DB }

// NewIngestLogRepo builds an IngestLogRepo.
func NewIngestLogRepo(db *sql.DB) *IngestLogRepo { return &IngestLogRepo{db: db} }

// Start opens a new IngestLog row at fetch dispatch time.
func (r *IngestLogRepo) Start(ctx context.Context, sourceID string) (*domain.IngestLog, error) {
	log := &domain.IngestLog{
		ID:        newUUID(),
		SourceID:  sourceID,
		StartedAt: time.Now().UTC(),
		Status:    domain.IngestFailed, // overwritten by Complete; a crash before Complete leaves this honest
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_logs (id, source_id, started_at, status, items_fetched, items_new, items_duplicate)
		VALUES ($1, $2, $3, $4, 0, 0, 0)
	`, log.ID, log.SourceID, log.StartedAt, log.Status)
	if err != nil {
		return nil, fmt.Errorf("start ingest log: %w", err)
	}
	return log, nil
}

// Complete closes out an IngestLog row with its final counters.
func (r *IngestLogRepo) Complete(ctx context.Context, logEntry *domain.IngestLog) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ingest_logs
		SET completed_at = $2, status = $3, items_fetched = $4, items_new = $5,
		    items_duplicate = $6, error_message = $7, duration_ms = $8, metadata_json = $9
		WHERE id = $1
	`, logEntry.ID, logEntry.CompletedAt, logEntry.Status, logEntry.ItemsFetched, logEntry.ItemsNew,
		logEntry.ItemsDup, logEntry.ErrorMessage, logEntry.DurationMs, logEntry.Metadata)
	if err != nil {
		return fmt.Errorf("complete ingest log %s: %w", logEntry.ID, err)
	}
	return nil
}
