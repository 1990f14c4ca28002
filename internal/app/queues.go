package app

import (
	"context"

	"github.com/dida1024/sentrycore/internal/eventbus"
)

// EmbedQueue adapts an eventbus.ItemQueue to pipeline.EmbedEnqueuer.
type EmbedQueue struct{ Q *eventbus.ItemQueue }

// EnqueueForEmbedding implements pipeline.EmbedEnqueuer.
func (q EmbedQueue) EnqueueForEmbedding(ctx context.Context, itemIDs []string) { q.Q.Enqueue(ctx, itemIDs) }

// MatchQueue adapts an eventbus.ItemQueue to embedding.MatchEnqueuer.
type MatchQueue struct{ Q *eventbus.ItemQueue }

// EnqueueForMatch implements embedding.MatchEnqueuer.
func (q MatchQueue) EnqueueForMatch(ctx context.Context, itemID string) { q.Q.EnqueueOne(ctx, itemID) }
