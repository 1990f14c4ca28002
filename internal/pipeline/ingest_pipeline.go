// Package pipeline wires the Fetch Scheduler (C2) to the Fetchers (C3)
// and Ingest Coordinator (C4): one FetchAndIngest call per dispatched
// Source, followed by the scheduler backoff bookkeeping (spec.md §4.1).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/fetch"
	"github.com/dida1024/sentrycore/internal/ingest"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// EmbedEnqueuer is notified of newly ingested Items so the embedding
// worker's selector (which is itself a FIFO poll over embedding_status)
// does not need an explicit handoff; kept as an interface so a queue
// backend can be swapped in without changing this package.
type EmbedEnqueuer interface {
	EnqueueForEmbedding(ctx context.Context, itemIDs []string)
}

// IngestPipeline implements fetch.IngestPipeline: fetch a Source, ingest
// its items, then update the Source's scheduling fields.
type IngestPipeline struct {
	sources     fetch.SourceStore
	coordinator *ingest.Coordinator
	fetchOpts   fetch.Options
	schedulerCfg fetch.SchedulerConfig
	enqueuer    EmbedEnqueuer
	maxItemsPerFetch int
}

// NewIngestPipeline builds an IngestPipeline.
func NewIngestPipeline(sources fetch.SourceStore, coordinator *ingest.Coordinator, fetchOpts fetch.Options, schedulerCfg fetch.SchedulerConfig, enqueuer EmbedEnqueuer, maxItemsPerFetch int) *IngestPipeline {
	if maxItemsPerFetch == 0 {
		maxItemsPerFetch = 100
	}
	return &IngestPipeline{
		sources:          sources,
		coordinator:      coordinator,
		fetchOpts:        fetchOpts,
		schedulerCfg:     schedulerCfg,
		enqueuer:         enqueuer,
		maxItemsPerFetch: maxItemsPerFetch,
	}
}

// FetchAndIngest implements fetch.IngestPipeline.
func (p *IngestPipeline) FetchAndIngest(ctx context.Context, source *domain.Source) error {
	fetcher, err := fetch.NewFetcher(source.Type, p.fetchOpts)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	result := fetcher.Fetch(ctx, source.Config, p.maxItemsPerFetch)
	now := time.Now().UTC()

	newItems, ingestResult, err := p.coordinator.Ingest(ctx, source.ID, result)
	if err != nil {
		return fmt.Errorf("pipeline: ingest failed for source %s: %w", source.ID, err)
	}

	if result.Status == fetch.StatusFailed {
		nextFetchAt, _ := fetch.NextFetchOnFailure(source, now)
		return p.sources.MarkFailed(ctx, source.ID, now, nextFetchAt)
	}

	if err := p.sources.MarkFetched(ctx, source.ID, now, ingestResult.ItemsNew); err != nil {
		return fmt.Errorf("pipeline: mark fetched failed for source %s: %w", source.ID, err)
	}

	if len(newItems) > 0 && p.enqueuer != nil {
		ids := make([]string, len(newItems))
		for i, it := range newItems {
			ids[i] = it.ID
		}
		p.enqueuer.EnqueueForEmbedding(ctx, ids)
	}

	logger.Info("pipeline: fetch complete", "source_id", source.ID, "status", string(result.Status),
		"items_fetched", ingestResult.ItemsFetched, "items_new", ingestResult.ItemsNew, "items_dup", ingestResult.ItemsDup)

	return nil
}
