package app

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/eventbus"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// MatchItemStore is the subset of ItemRepo the match dispatcher needs:
// the Item row plus its embedding, loaded separately since an item
// pending embedding has no vector (see ItemRepo.GetEmbedding).
type MatchItemStore interface {
	GetByID(ctx context.Context, itemID string) (*domain.Item, error)
	GetEmbedding(ctx context.Context, itemID string) (*pgvector.Vector, error)
}

// MatchComputer runs the Match Engine (C6) against one fully-loaded Item.
type MatchComputer interface {
	Compute(ctx context.Context, item *domain.Item) error
}

// MatchDispatcher drains the in-process match queue populated by the
// embedding worker's MatchEnqueuer and runs each item through the Match
// Engine, on a tick rather than one goroutine per item so a slow match
// computation cannot starve the queue drain (spec.md §4.9).
type MatchDispatcher struct {
	queue     *eventbus.ItemQueue
	items     MatchItemStore
	engine    MatchComputer
	batchSize int
}

// NewMatchDispatcher builds a MatchDispatcher. batchSize defaults to 100
// items drained per tick if 0.
func NewMatchDispatcher(queue *eventbus.ItemQueue, items MatchItemStore, engine MatchComputer, batchSize int) *MatchDispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &MatchDispatcher{queue: queue, items: items, engine: engine, batchSize: batchSize}
}

// Tick drains up to batchSize queued item IDs and scores each.
func (d *MatchDispatcher) Tick(ctx context.Context) error {
	for _, itemID := range d.queue.Drain(d.batchSize) {
		d.dispatchOne(ctx, itemID)
	}
	return nil
}

func (d *MatchDispatcher) dispatchOne(ctx context.Context, itemID string) {
	item, err := d.items.GetByID(ctx, itemID)
	if err != nil {
		logger.Error("app: load item for match failed", "item_id", itemID, "error", err.Error())
		return
	}
	emb, err := d.items.GetEmbedding(ctx, itemID)
	if err != nil {
		logger.Error("app: load item embedding for match failed", "item_id", itemID, "error", err.Error())
		return
	}
	item.Embedding = emb

	if err := d.engine.Compute(ctx, item); err != nil {
		logger.Error("app: match compute failed", "item_id", itemID, "error", err.Error())
	}
}
