// Package coalescer implements the Delivery Coalescer (C8, spec.md
// §4.7): three parallel subsystems (immediate buffer, batch windows,
// digest) that each drain ActionProposals into rendered, deduped,
// outboxed emails.
package coalescer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dida1024/sentrycore/internal/domain"
)

// ImmediateBucketWindow is the 5-minute floor bucket used to key the
// immediate buffer (spec.md §4.7).
const ImmediateBucketWindow = 5 * time.Minute

// ImmediateBufferTTL matches the shared-resource table in spec.md §5.
const ImmediateBufferTTL = 10 * time.Minute

// ImmediateCap is the max items rendered into one immediate email per
// goal per bucket (spec.md §4.7, §8 property 9).
const ImmediateCap = 3

// ImmediateBuffer accumulates IMMEDIATE ActionProposals per
// (goal_id, 5-minute bucket) key in Redis until the next immediate
// tick seals the bucket.
type ImmediateBuffer struct {
	redis *redis.Client
}

// NewImmediateBuffer builds an ImmediateBuffer.
func NewImmediateBuffer(client *redis.Client) *ImmediateBuffer {
	return &ImmediateBuffer{redis: client}
}

// ImmediateBucketKey returns floor(t / 5min) in UTC, per spec.md §4.7
// "Bucket boundary".
func ImmediateBucketKey(t time.Time) int64 {
	return t.UTC().Unix() / int64(ImmediateBucketWindow.Seconds())
}

func bufferKey(goalID string, bucket int64) string {
	return fmt.Sprintf("buffer:immediate:%s:%d", goalID, bucket)
}

// Add appends a proposal to its goal's current 5-minute bucket.
func (b *ImmediateBuffer) Add(ctx context.Context, proposal domain.ActionProposal, now time.Time) error {
	bucket := ImmediateBucketKey(now)
	key := bufferKey(proposal.GoalID, bucket)

	payload, err := encodeProposal(proposal)
	if err != nil {
		return fmt.Errorf("coalescer: encode proposal: %w", err)
	}

	pipe := b.redis.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, ImmediateBufferTTL)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("coalescer: buffer add for goal %s: %w", proposal.GoalID, err)
	}
	return nil
}

// SealResult is the outcome of sealing one goal's immediate bucket.
type SealResult struct {
	GoalID   string
	Sent     []domain.ActionProposal
	Demoted  []domain.ActionProposal
}

// Seal drains and deletes a goal's bucket for the prior 5-minute
// window, keeping at most ImmediateCap most-recent items and demoting
// the rest to BATCH (spec.md §4.7, §8 property 9).
func (b *ImmediateBuffer) Seal(ctx context.Context, goalID string, bucket int64) (SealResult, error) {
	key := bufferKey(goalID, bucket)

	raw, err := b.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return SealResult{}, fmt.Errorf("coalescer: seal read for goal %s: %w", goalID, err)
	}
	if len(raw) == 0 {
		return SealResult{GoalID: goalID}, nil
	}

	proposals := make([]domain.ActionProposal, 0, len(raw))
	for _, r := range raw {
		p, err := decodeProposal(r)
		if err != nil {
			continue
		}
		proposals = append(proposals, p)
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].DecidedAt.After(proposals[j].DecidedAt)
	})

	result := SealResult{GoalID: goalID}
	for i, p := range proposals {
		if i < ImmediateCap {
			result.Sent = append(result.Sent, p)
		} else {
			p.Decision = domain.DecisionBatch
			result.Demoted = append(result.Demoted, p)
		}
	}

	if err := b.redis.Del(ctx, key).Err(); err != nil {
		return result, fmt.Errorf("coalescer: seal cleanup for goal %s: %w", goalID, err)
	}
	return result, nil
}

// PendingBuckets lists the buffer keys currently present, in their raw
// "buffer:immediate:<goal_id>:<bucket>" form, used by the
// immediate_flush tick to discover what to seal.
func (b *ImmediateBuffer) PendingBuckets(ctx context.Context) ([]string, error) {
	var keys []string
	iter := b.redis.Scan(ctx, 0, "buffer:immediate:*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("coalescer: scan pending buckets: %w", err)
	}
	return keys, nil
}
