// Package ingest implements the Ingest Coordinator (spec.md §4.3, C4):
// URL canonicalisation, topic-key dedupe, Item persistence and the
// per-fetch IngestLog.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/fetch"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// ItemStore is the persistence contract the coordinator needs from the
// Item repository.
type ItemStore interface {
	// CreateIfNotExists performs a conditional insert keyed on url_hash.
	// ok is false when a row with that url_hash already existed (the
	// duplicate case); the returned Item is nil in that case.
	CreateIfNotExists(ctx context.Context, item *domain.Item) (created *domain.Item, ok bool, err error)
}

// IngestLogStore persists one row per fetch attempt.
type IngestLogStore interface {
	Start(ctx context.Context, sourceID string) (*domain.IngestLog, error)
	Complete(ctx context.Context, logEntry *domain.IngestLog) error
}

// RawArchiver offloads an Item's raw fetched body to cold storage,
// returning a pointer to store on the row in place of the body itself
// (spec.md §1: the body is not SentryCore's to index, only to point at).
type RawArchiver interface {
	Put(ctx context.Context, itemID string, raw []byte) (objectKey string, err error)
}

// Coordinator canonicalises fetched items, deduplicates them, and writes
// the ingest log.
type Coordinator struct {
	items   ItemStore
	logs    IngestLogStore
	archive RawArchiver
}

// NewCoordinator builds a Coordinator. archive may be nil, in which
// case the raw body is stored inline on the Item row as today.
func NewCoordinator(items ItemStore, logs IngestLogStore, archive RawArchiver) *Coordinator {
	return &Coordinator{items: items, logs: logs, archive: archive}
}

// IngestResult summarizes one fetch-and-ingest cycle for a source.
type IngestResult struct {
	ItemsFetched int
	ItemsNew     int
	ItemsDup     int
	Status       domain.IngestStatus
}

// Ingest canonicalises and deduplicates a fetch result for sourceID,
// writing an IngestLog row and returning the newly created Items.
func (c *Coordinator) Ingest(ctx context.Context, sourceID string, fr fetch.FetchResult) ([]*domain.Item, IngestResult, error) {
	logEntry, err := c.logs.Start(ctx, sourceID)
	if err != nil {
		return nil, IngestResult{}, err
	}

	var newItems []*domain.Item
	result := IngestResult{ItemsFetched: len(fr.Items)}

	for _, fi := range fr.Items {
		canon, err := CanonicalizeURL(fi.URL)
		if err != nil {
			logger.Warn("ingest: skipping unparseable URL", "source_id", sourceID, "url", fi.URL, "error", err.Error())
			continue
		}

		item := &domain.Item{
			ID:              uuid.NewString(),
			SourceID:        sourceID,
			URL:             fi.URL,
			URLHash:         URLHash(canon),
			TopicKey:        TopicKey(canon),
			Title:           fi.Title,
			PublishedAt:     fi.PublishedAt,
			IngestedAt:      time.Now().UTC(),
			EmbeddingStatus: domain.EmbeddingPending,
		}
		if fi.Snippet != "" {
			item.Snippet = &fi.Snippet
		}
		if fi.Raw != "" {
			if c.archive != nil {
				key, err := c.archive.Put(ctx, item.ID, []byte(fi.Raw))
				if err != nil {
					logger.Warn("ingest: raw archive failed, falling back to inline storage", "item_id", item.ID, "error", err.Error())
					item.RawData = &fi.Raw
				} else {
					item.RawData = &key
				}
			} else {
				item.RawData = &fi.Raw
			}
		}

		created, ok, err := c.items.CreateIfNotExists(ctx, item)
		if err != nil {
			return newItems, result, err
		}
		if !ok {
			result.ItemsDup++
			continue
		}
		result.ItemsNew++
		newItems = append(newItems, created)
	}

	result.Status = worstStatus(fr.Status, result)
	c.finishLog(ctx, logEntry, result, fr)

	return newItems, result, nil
}

func worstStatus(fetchStatus fetch.Status, result IngestResult) domain.IngestStatus {
	switch fetchStatus {
	case fetch.StatusFailed:
		return domain.IngestFailed
	case fetch.StatusPartial:
		return domain.IngestPartial
	default:
		if result.ItemsFetched > 0 && result.ItemsNew == 0 && result.ItemsDup == 0 {
			// every item failed to parse/canonicalise
			return domain.IngestPartial
		}
		return domain.IngestSuccess
	}
}

func (c *Coordinator) finishLog(ctx context.Context, logEntry *domain.IngestLog, result IngestResult, fr fetch.FetchResult) {
	now := time.Now().UTC()
	logEntry.CompletedAt = &now
	logEntry.Status = result.Status
	logEntry.ItemsFetched = result.ItemsFetched
	logEntry.ItemsNew = result.ItemsNew
	logEntry.ItemsDup = result.ItemsDup
	if fr.Error != nil {
		msg := fr.Error.Error()
		logEntry.ErrorMessage = &msg
	}
	durMs := fr.DurationMs
	logEntry.DurationMs = &durMs

	if err := c.logs.Complete(ctx, logEntry); err != nil {
		logger.Error("ingest: failed to write ingest log", "source_id", logEntry.SourceID, "error", err.Error())
	}
}
