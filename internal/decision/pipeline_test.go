package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

type fakeSink struct {
	emitted []domain.ActionProposal
	err     error
}

func (f *fakeSink) Emit(p domain.ActionProposal) error {
	if f.err != nil {
		return f.err
	}
	f.emitted = append(f.emitted, p)
	return nil
}

type fakeJudge struct {
	boundaryOut BoundaryJudgeOutput
	boundaryErr error
	pushOut     PushWorthinessOutput
	pushErr     error
}

func (f *fakeJudge) JudgeBoundary(ctx context.Context, prompt string) (BoundaryJudgeOutput, error) {
	return f.boundaryOut, f.boundaryErr
}
func (f *fakeJudge) JudgePushWorthiness(ctx context.Context, prompt string) (PushWorthinessOutput, error) {
	return f.pushOut, f.pushErr
}

func baseGoalItemMatch(score float64, mustHit bool, priorityHits int, negativeHit bool) (*domain.Goal, *domain.Item, *domain.GoalItemMatch) {
	goal := &domain.Goal{ID: "g1", Name: "Goal", Status: domain.GoalActive}
	item := &domain.Item{ID: "i1", Title: "An item"}
	m := &domain.GoalItemMatch{
		GoalID: "g1", ItemID: "i1", MatchScore: score, TopicKey: "abc123",
		ItemTime: time.Now(), ComputedAt: time.Now(),
		Features: domain.MatchFeatures{MustHit: mustHit, PriorityHitCount: priorityHits, NegativeHit: negativeHit},
	}
	return goal, item, m
}

func TestPipeline_ScoreZero_NegativeHit_RoutesIgnore(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0, false, 0, true)
	sink := &fakeSink{}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
	p := NewPipeline(nil, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionIgnore, s.Bucket)
	assert.Contains(t, s.BlockReasons, "NEGATIVE_TERM")
	assert.Empty(t, sink.emitted)
}

func TestPipeline_BlockedSource_RoutesIgnore(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.99, true, 2, false)
	sink := &fakeSink{}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, true, "Feed")
	p := NewPipeline(nil, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionIgnore, s.Bucket)
	assert.Contains(t, s.BlockReasons, "BLOCKED_SOURCE")
	assert.Empty(t, sink.emitted)
}

// TestPipeline_HighScore_RoutesImmediate covers scenario S3.
func TestPipeline_HighScore_RoutesImmediate(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.95, true, 1, false)
	sink := &fakeSink{}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
	p := NewPipeline(nil, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionImmediate, s.Bucket)
	require.Len(t, sink.emitted, 1)
	assert.Equal(t, "i1", sink.emitted[0].ItemID)
}

func TestPipeline_BucketBoundaries(t *testing.T) {
	cases := []struct {
		score    float64
		expected domain.DecisionBucket
	}{
		{0.93, domain.DecisionImmediate},
		{0.929999, domain.DecisionBoundary},
		{0.88, domain.DecisionBoundary},
		{0.879999, domain.DecisionBatch},
		{0.75, domain.DecisionBatch},
		{0.749999, domain.DecisionIgnore},
	}

	for _, tc := range cases {
		goal, item, m := baseGoalItemMatch(tc.score, false, 0, false)
		s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
		RuleGate(s)
		Bucket(s)
		assert.Equal(t, tc.expected, s.Bucket, "score=%v", tc.score)
	}
}

// TestPipeline_BoundaryPromotion_LLM covers scenario S4 (LLM enabled).
func TestPipeline_BoundaryPromotion_LLM(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.90, true, 1, false)
	sink := &fakeSink{}
	judge := &fakeJudge{boundaryOut: BoundaryJudgeOutput{Promote: true, Confidence: 0.8}, pushOut: PushWorthinessOutput{Push: true}}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
	p := NewPipeline(judge, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionImmediate, s.Bucket)
	assert.True(t, s.LLMUsed)
}

// TestPipeline_BoundaryPromotion_Fallback covers scenario S4 (LLM
// disabled) and property 10.
func TestPipeline_BoundaryPromotion_Fallback(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.90, true, 1, false)
	sink := &fakeSink{}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{JudgeDisabled: true}, Thresholds{}, false, "Feed")
	p := NewPipeline(nil, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionImmediate, s.Bucket)
	assert.False(t, s.LLMUsed)
	assert.NotEmpty(t, s.FallbackReason)
}

func TestPipeline_BoundaryFallback_NoMustHit_RoutesBatch(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.90, false, 0, false)
	sink := &fakeSink{}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{JudgeDisabled: true}, Thresholds{}, false, "Feed")
	p := NewPipeline(nil, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionBatch, s.Bucket)
}

func TestPipeline_BoundaryLLMError_FallsBack(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.90, true, 1, false)
	sink := &fakeSink{}
	judge := &fakeJudge{boundaryErr: errors.New("timeout"), pushErr: errors.New("timeout")}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
	p := NewPipeline(judge, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionImmediate, s.Bucket)
	assert.False(t, s.LLMUsed)
}

func TestPipeline_PushWorthinessFalse_DowngradesImmediateToBatch(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.95, true, 1, false)
	sink := &fakeSink{}
	judge := &fakeJudge{pushOut: PushWorthinessOutput{Push: false, Reasons: []string{"routine update"}}}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
	p := NewPipeline(judge, sink)

	require.NoError(t, p.Run(context.Background(), s))

	assert.Equal(t, domain.DecisionBatch, s.Bucket)
}

func TestDedupeKey_Deterministic(t *testing.T) {
	k1 := DedupeKey("g1", "topic1", domain.DecisionImmediate, "100")
	k2 := DedupeKey("g1", "topic1", domain.DecisionImmediate, "100")
	k3 := DedupeKey("g1", "topic1", domain.DecisionBatch, "100")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestDedupeKey_DiffersAcrossCoalesceBuckets(t *testing.T) {
	k1 := DedupeKey("g1", "topic1", domain.DecisionImmediate, "100")
	k2 := DedupeKey("g1", "topic1", domain.DecisionImmediate, "101")

	assert.NotEqual(t, k1, k2, "two IMMEDIATE proposals for the same goal/topic in different 5-minute buckets must not collide")
}

func TestCoalesceBucket_ImmediateUsesFiveMinuteWindow(t *testing.T) {
	t1 := time.Date(2026, 7, 30, 12, 2, 0, 0, time.UTC)
	t2 := time.Date(2026, 7, 30, 12, 7, 0, 0, time.UTC)

	assert.Equal(t, CoalesceBucket(domain.DecisionImmediate, t1), CoalesceBucket(domain.DecisionImmediate, t1))
	assert.NotEqual(t, CoalesceBucket(domain.DecisionImmediate, t1), CoalesceBucket(domain.DecisionImmediate, t2),
		"t1 and t2 fall in different 5-minute buckets")
}

func TestCoalesceBucket_NonImmediateUsesCalendarDay(t *testing.T) {
	morning := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, CoalesceBucket(domain.DecisionBatch, morning), CoalesceBucket(domain.DecisionBatch, evening))
}

func TestPipeline_SinkErrorPropagates(t *testing.T) {
	goal, item, m := baseGoalItemMatch(0.95, true, 1, false)
	sink := &fakeSink{err: errors.New("queue full")}
	s := NewState(TriggerMatchComputed, goal, item, m, domain.BudgetFlags{}, Thresholds{}, false, "Feed")
	p := NewPipeline(nil, sink)

	err := p.Run(context.Background(), s)

	assert.Error(t, err)
}
