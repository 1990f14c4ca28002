package coalescer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

type fakeDecisionStore struct {
	byDedupe map[string]*domain.PushDecisionRecord
	sent     []string
	failed   []string
}

func (f *fakeDecisionStore) FindByDedupeKey(ctx context.Context, dedupeKey string) (*domain.PushDecisionRecord, error) {
	return f.byDedupe[dedupeKey], nil
}
func (f *fakeDecisionStore) MarkSent(ctx context.Context, decisionID string, sentAt time.Time) error {
	f.sent = append(f.sent, decisionID)
	return nil
}
func (f *fakeDecisionStore) MarkFailed(ctx context.Context, decisionID string) error {
	f.failed = append(f.failed, decisionID)
	return nil
}
func (f *fakeDecisionStore) MarkSkipped(ctx context.Context, decisionID string) error { return nil }
func (f *fakeDecisionStore) DrainBatch(ctx context.Context, goalID string, since time.Time) ([]*domain.PushDecisionRecord, error) {
	return nil, nil
}
func (f *fakeDecisionStore) DrainDigest(ctx context.Context, goalID string, since time.Time, topN int) ([]*domain.PushDecisionRecord, error) {
	return nil, nil
}

func TestIsDuplicate_NoExistingRecord(t *testing.T) {
	store := &fakeDecisionStore{byDedupe: map[string]*domain.PushDecisionRecord{}}
	dup, err := IsDuplicate(context.Background(), store, domain.ActionProposal{DedupeKey: "k1"})

	require.NoError(t, err)
	assert.False(t, dup)
}

func TestIsDuplicate_ExistingSentNewer(t *testing.T) {
	now := time.Now()
	store := &fakeDecisionStore{byDedupe: map[string]*domain.PushDecisionRecord{
		"k1": {Status: domain.StatusSent, DecidedAt: now},
	}}
	dup, err := IsDuplicate(context.Background(), store, domain.ActionProposal{DedupeKey: "k1", DecidedAt: now.Add(-time.Minute)})

	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIsDuplicate_ExistingFailedIsNotDuplicate(t *testing.T) {
	now := time.Now()
	store := &fakeDecisionStore{byDedupe: map[string]*domain.PushDecisionRecord{
		"k1": {Status: domain.StatusFailed, DecidedAt: now},
	}}
	dup, err := IsDuplicate(context.Background(), store, domain.ActionProposal{DedupeKey: "k1", DecidedAt: now})

	require.NoError(t, err)
	assert.False(t, dup)
}
