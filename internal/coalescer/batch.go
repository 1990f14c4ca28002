package coalescer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// GoalPushConfigStore resolves a Goal's push preferences for the batch
// and digest windows.
type GoalPushConfigStore interface {
	PushConfig(ctx context.Context, goalID string) (*domain.GoalPushConfig, error)
	ActiveGoalsWithBatchWindow(ctx context.Context, hhmm string) ([]string, error)
	ActiveGoalsWithDigestTime(ctx context.Context, hhmm string) ([]string, error)
}

// BatchWindow drains BATCH-bucket PushDecisionRecords at each goal's
// configured HH:MM window (at most 3 per goal, spec.md §4.7).
type BatchWindow struct {
	store    DecisionStore
	configs  GoalPushConfigStore
}

// NewBatchWindow builds a BatchWindow processor.
func NewBatchWindow(store DecisionStore, configs GoalPushConfigStore) *BatchWindow {
	return &BatchWindow{store: store, configs: configs}
}

// DrainedBatch is a rendered-ready drain result for one goal.
type DrainedBatch struct {
	GoalID  string
	Records []*domain.PushDecisionRecord
}

// Tick runs the batch window drain for the current minute. previousWindow
// is the last time this HH:MM fired (24h prior if never).
func (b *BatchWindow) Tick(ctx context.Context, now time.Time, previousWindow time.Time) ([]DrainedBatch, error) {
	hhmm := now.UTC().Format("15:04")

	goalIDs, err := b.configs.ActiveGoalsWithBatchWindow(ctx, hhmm)
	if err != nil {
		return nil, fmt.Errorf("coalescer: resolve batch-window goals: %w", err)
	}

	var results []DrainedBatch
	for _, goalID := range goalIDs {
		records, err := b.store.DrainBatch(ctx, goalID, previousWindow)
		if err != nil {
			return nil, fmt.Errorf("coalescer: drain batch for goal %s: %w", goalID, err)
		}
		if len(records) == 0 {
			// No email when the drained set is empty (spec.md §4.7).
			continue
		}
		sort.Slice(records, func(i, j int) bool {
			si, ti := decisionRank(records[i])
			sj, tj := decisionRank(records[j])
			if si != sj {
				return si > sj
			}
			return ti > tj
		})
		results = append(results, DrainedBatch{GoalID: goalID, Records: records})
	}
	return results, nil
}

func decisionRank(r *domain.PushDecisionRecord) (float64, int64) {
	// Ranking key mirrors score DESC, item_time DESC (spec.md §4.7
	// "Digest"); batch windows rank the same way for a stable send order.
	return r.Score, r.ItemTime.Unix()
}
