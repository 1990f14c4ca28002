package embedding

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/errs"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// ItemStore is the persistence contract the worker needs from the Item
// repository.
type ItemStore interface {
	SelectPendingEmbedding(ctx context.Context, limit int) ([]*domain.Item, error)
	MarkEmbedded(ctx context.Context, itemID string, vector pgvector.Vector, model string) error
	MarkEmbeddingStatus(ctx context.Context, itemID string, status domain.EmbeddingStatus) error
}

// SourceOwnerLookup resolves the budget-bearing user for an Item's
// source: source.owner_id if private, else a shared "system" bucket
// (spec.md §4.4).
type SourceOwnerLookup interface {
	OwnerForSource(ctx context.Context, sourceID string) (userID string, err error)
}

// SystemBudgetUser is the shared bucket for items from non-private
// sources.
const SystemBudgetUser = "system"

// BudgetGate is the subset of the Budget Governor (C9) the worker
// consults before spending on an embedding call (spec.md §4.4, §4.8).
type BudgetGate interface {
	Flags(ctx context.Context, userID string) (domain.BudgetFlags, error)
	Reserve(ctx context.Context, userID string, kind domain.ReserveKind, tokensEst int64, usdEst float64) (allowed bool, err error)
}

// MatchEnqueuer is notified when an Item finishes embedding so the match
// engine can score it against active Goals (spec.md §4.4 "Output event").
type MatchEnqueuer interface {
	EnqueueForMatch(ctx context.Context, itemID string)
}

// WorkerConfig tunes the embedding worker's tick.
type WorkerConfig struct {
	BatchSize          int
	USDPerToken        float64
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	return c
}

// Worker is the Embedding Worker (C5): every tick, loads up to
// BatchSize pending Items FIFO by ingested_at and embeds each under
// budget control.
type Worker struct {
	items    ItemStore
	owners   SourceOwnerLookup
	budget   BudgetGate
	provider Provider
	enqueuer MatchEnqueuer
	cfg      WorkerConfig

	errorCount int64
}

// NewWorker builds a Worker.
func NewWorker(items ItemStore, owners SourceOwnerLookup, budget BudgetGate, provider Provider, enqueuer MatchEnqueuer, cfg WorkerConfig) *Worker {
	return &Worker{items: items, owners: owners, budget: budget, provider: provider, enqueuer: enqueuer, cfg: cfg.withDefaults()}
}

// Tick processes one batch of pending items.
func (w *Worker) Tick(ctx context.Context) error {
	pending, err := w.items.SelectPendingEmbedding(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range pending {
		w.processOne(ctx, item)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, item *domain.Item) {
	userID, err := w.owners.OwnerForSource(ctx, item.SourceID)
	if err != nil {
		logger.Error("embedding: failed to resolve owner", "item_id", item.ID, "error", err.Error())
		return
	}
	if userID == "" {
		userID = SystemBudgetUser
	}

	flags, err := w.budget.Flags(ctx, userID)
	if err != nil {
		logger.Error("embedding: failed to read budget flags", "user_id", userID, "error", err.Error())
		return
	}
	if flags.EmbeddingDisabled {
		w.setStatus(ctx, item.ID, domain.EmbeddingSkippedBudget)
		return
	}

	tokens := int64(EstimateTokens(item.EmbeddingText()))
	usd := float64(tokens) * w.cfg.USDPerToken

	allowed, err := w.budget.Reserve(ctx, userID, domain.ReserveEmbedding, tokens, usd)
	if err != nil {
		logger.Error("embedding: reserve failed", "user_id", userID, "item_id", item.ID, "error", err.Error())
		return
	}
	if !allowed {
		w.setStatus(ctx, item.ID, domain.EmbeddingSkippedBudget)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	vec, err := w.provider.Embed(ctx, item.EmbeddingText())
	if err != nil {
		w.errorCount++
		logger.Error("embedding: provider call failed", "item_id", item.ID, "error", err.Error())
		if errs.IsRetryable(err) {
			// leave it pending: a transient Bedrock failure should be
			// retried on the next tick, not abandoned.
			return
		}
		w.setStatus(ctx, item.ID, domain.EmbeddingFailed)
		return
	}

	if err := w.items.MarkEmbedded(ctx, item.ID, vec, w.provider.Model()); err != nil {
		logger.Error("embedding: failed to persist vector", "item_id", item.ID, "error", err.Error())
		return
	}

	if w.enqueuer != nil {
		w.enqueuer.EnqueueForMatch(ctx, item.ID)
	}
}

func (w *Worker) setStatus(ctx context.Context, itemID string, status domain.EmbeddingStatus) {
	if err := w.items.MarkEmbeddingStatus(ctx, itemID, status); err != nil {
		logger.Error("embedding: failed to set status", "item_id", itemID, "status", string(status), "error", err.Error())
	}
}

// ErrorCount returns the worker's cumulative provider error count.
func (w *Worker) ErrorCount() int64 { return w.errorCount }
