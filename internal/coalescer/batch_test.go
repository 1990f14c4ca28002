package coalescer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

type fakeConfigStore struct {
	batchGoals  map[string][]string
	digestGoals map[string][]string
}

func (f *fakeConfigStore) PushConfig(ctx context.Context, goalID string) (*domain.GoalPushConfig, error) {
	return &domain.GoalPushConfig{GoalID: goalID}, nil
}
func (f *fakeConfigStore) ActiveGoalsWithBatchWindow(ctx context.Context, hhmm string) ([]string, error) {
	return f.batchGoals[hhmm], nil
}
func (f *fakeConfigStore) ActiveGoalsWithDigestTime(ctx context.Context, hhmm string) ([]string, error) {
	return f.digestGoals[hhmm], nil
}

type recordingDecisionStore struct {
	fakeDecisionStore
	batchRecords map[string][]*domain.PushDecisionRecord
}

func (r *recordingDecisionStore) DrainBatch(ctx context.Context, goalID string, since time.Time) ([]*domain.PushDecisionRecord, error) {
	return r.batchRecords[goalID], nil
}

// TestBatchWindow_Tick_SendsAtConfiguredMinute covers scenario S5.
func TestBatchWindow_Tick_SendsAtConfiguredMinute(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 30, 0, 0, time.UTC)
	records := []*domain.PushDecisionRecord{
		{ID: "r1", GoalID: "g1", Score: 0.80, DecidedAt: now.Add(-time.Hour)},
		{ID: "r2", GoalID: "g1", Score: 0.90, DecidedAt: now.Add(-2 * time.Hour)},
	}
	store := &recordingDecisionStore{batchRecords: map[string][]*domain.PushDecisionRecord{"g1": records}}
	configs := &fakeConfigStore{batchGoals: map[string][]string{"12:30": {"g1"}}}

	bw := NewBatchWindow(store, configs)
	result, err := bw.Tick(context.Background(), now, now.Add(-5*time.Hour))

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "g1", result[0].GoalID)
	assert.Len(t, result[0].Records, 2)
}

func TestBatchWindow_Tick_EmptyDrainSendsNoEmail(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 30, 0, 0, time.UTC)
	store := &recordingDecisionStore{batchRecords: map[string][]*domain.PushDecisionRecord{}}
	configs := &fakeConfigStore{batchGoals: map[string][]string{"12:30": {"g1"}}}

	bw := NewBatchWindow(store, configs)
	result, err := bw.Tick(context.Background(), now, now.Add(-5*time.Hour))

	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestBatchWindow_Tick_NoGoalsConfiguredForMinute(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	store := &recordingDecisionStore{}
	configs := &fakeConfigStore{}

	bw := NewBatchWindow(store, configs)
	result, err := bw.Tick(context.Background(), now, now.Add(-time.Hour))

	require.NoError(t, err)
	assert.Empty(t, result)
}
