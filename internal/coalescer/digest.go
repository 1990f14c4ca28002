package coalescer

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DigestWindow is 24h of accumulated DIGEST proposals (spec.md §4.7).
const DigestWindow = 24 * time.Hour

// DigestTopN is the default cap on items rendered in one digest email.
const DigestTopN = 10

// Digest drains DIGEST-bucket PushDecisionRecords at a goal's
// digest_send_time, ranked score DESC, item_time DESC (spec.md §4.7).
type Digest struct {
	store   DecisionStore
	configs GoalPushConfigStore
	topN    int
}

// NewDigest builds a Digest processor. topN defaults to DigestTopN if 0.
func NewDigest(store DecisionStore, configs GoalPushConfigStore, topN int) *Digest {
	if topN == 0 {
		topN = DigestTopN
	}
	return &Digest{store: store, configs: configs, topN: topN}
}

// Tick runs the digest drain for the current minute.
func (d *Digest) Tick(ctx context.Context, now time.Time) ([]DrainedBatch, error) {
	hhmm := now.UTC().Format("15:04")

	goalIDs, err := d.configs.ActiveGoalsWithDigestTime(ctx, hhmm)
	if err != nil {
		return nil, fmt.Errorf("coalescer: resolve digest goals: %w", err)
	}

	var results []DrainedBatch
	since := now.Add(-DigestWindow)
	for _, goalID := range goalIDs {
		records, err := d.store.DrainDigest(ctx, goalID, since, d.topN)
		if err != nil {
			return nil, fmt.Errorf("coalescer: drain digest for goal %s: %w", goalID, err)
		}
		if len(records) == 0 {
			continue
		}
		sort.Slice(records, func(i, j int) bool {
			if records[i].Score != records[j].Score {
				return records[i].Score > records[j].Score
			}
			return records[i].ItemTime.After(records[j].ItemTime)
		})
		if len(records) > d.topN {
			records = records[:d.topN]
		}
		results = append(results, DrainedBatch{GoalID: goalID, Records: records})
	}
	return results, nil
}
