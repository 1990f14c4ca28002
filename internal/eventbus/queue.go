// Package eventbus provides the small in-process, channel-backed
// handoffs between pipeline stages (ingest -> embed, embed -> match),
// in the style of the teacher's subscriber-channel
// pattern (internal/engine/campaign_events.go): a buffered channel plus
// a goroutine pool draining it, rather than a broker.
package eventbus

import (
	"context"
	"sync"

	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// ItemQueue is a bounded, at-most-once-buffered handoff of item IDs
// between two pipeline stages. A full queue drops the oldest-behavior
// is intentionally avoided: Enqueue blocks the caller briefly rather
// than silently dropping work, since every dropped ID is a missed
// embedding or match (spec.md §9 favors backpressure over loss).
type ItemQueue struct {
	ch chan string
}

// NewItemQueue builds an ItemQueue with the given buffer size.
func NewItemQueue(buffer int) *ItemQueue {
	if buffer <= 0 {
		buffer = 1000
	}
	return &ItemQueue{ch: make(chan string, buffer)}
}

// Enqueue adds itemIDs to the queue, logging (not blocking forever) if
// the context is canceled while waiting for room.
func (q *ItemQueue) Enqueue(ctx context.Context, itemIDs []string) {
	for _, id := range itemIDs {
		select {
		case q.ch <- id:
		case <-ctx.Done():
			logger.Warn("eventbus: enqueue canceled", "item_id", id)
			return
		}
	}
}

// EnqueueOne adds a single itemID, used by components that hand off one
// at a time (the embedding worker's MatchEnqueuer, via app.MatchQueue).
func (q *ItemQueue) EnqueueOne(ctx context.Context, itemID string) {
	select {
	case q.ch <- itemID:
	case <-ctx.Done():
		logger.Warn("eventbus: enqueue canceled", "item_id", itemID)
	}
}

// Drain consumes up to max queued IDs without blocking, used by a
// polling Tick-style consumer.
func (q *ItemQueue) Drain(max int) []string {
	out := make([]string, 0, max)
	for i := 0; i < max; i++ {
		select {
		case id := <-q.ch:
			out = append(out, id)
		default:
			return out
		}
	}
	return out
}

// Run starts numWorkers goroutines each calling handle for every queued
// ID until ctx is canceled.
func (q *ItemQueue) Run(ctx context.Context, numWorkers int, handle func(ctx context.Context, itemID string)) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case id := <-q.ch:
					handle(ctx, id)
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
}
