package coalescer

import (
	"context"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// DecisionStore is the PushDecisionRecord persistence contract the
// coalescer needs: dedupe lookups, PENDING->SENT/FAILED transitions,
// and the source for batch/digest draining.
type DecisionStore interface {
	FindByDedupeKey(ctx context.Context, dedupeKey string) (*domain.PushDecisionRecord, error)
	MarkSent(ctx context.Context, decisionID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, decisionID string) error
	MarkSkipped(ctx context.Context, decisionID string) error
	DrainBatch(ctx context.Context, goalID string, since time.Time) ([]*domain.PushDecisionRecord, error)
	DrainDigest(ctx context.Context, goalID string, since time.Time, topN int) ([]*domain.PushDecisionRecord, error)
}

// IsDuplicate reports whether a proposal's dedupe_key already has a
// SENT or PENDING record newer than the current proposal (spec.md §4.7
// "Dedupe", §8 property 8: at-most-once per dedupe_key).
func IsDuplicate(ctx context.Context, store DecisionStore, proposal domain.ActionProposal) (bool, error) {
	existing, err := store.FindByDedupeKey(ctx, proposal.DedupeKey)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if existing.Status != domain.StatusSent && existing.Status != domain.StatusPending {
		return false, nil
	}
	return !existing.DecidedAt.Before(proposal.DecidedAt), nil
}
