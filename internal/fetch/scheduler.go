package fetch

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// SourceStore is the persistence contract the scheduler needs from the
// Source repository. SelectDue must apply row-level locking (`FOR UPDATE
// SKIP LOCKED` or equivalent) so concurrent scheduler replicas never pick
// the same Source (spec.md §4.1, §5).
type SourceStore interface {
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*domain.Source, error)
	MarkFetched(ctx context.Context, sourceID string, now time.Time, itemCount int) error
	MarkFailed(ctx context.Context, sourceID string, now time.Time, nextFetchAt time.Time) error
}

// IngestPipeline is what the scheduler hands a dispatched fetch off to:
// fetch, then ingest.
type IngestPipeline interface {
	FetchAndIngest(ctx context.Context, source *domain.Source) error
}

// SchedulerConfig tunes tick behavior (spec.md §4.1).
type SchedulerConfig struct {
	MaxSourcesPerTick    int
	EmptyStreakThreshold int
	EmptyStreakCooldownFactor float64
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.MaxSourcesPerTick == 0 {
		c.MaxSourcesPerTick = 10
	}
	if c.EmptyStreakThreshold == 0 {
		c.EmptyStreakThreshold = 5
	}
	if c.EmptyStreakCooldownFactor == 0 {
		c.EmptyStreakCooldownFactor = 2.0
	}
	return c
}

// Scheduler is the Fetch Scheduler (C2). It is stateless across ticks:
// all scheduling state lives on the Source row (spec.md §4.1).
type Scheduler struct {
	sources  SourceStore
	pipeline IngestPipeline
	cfg      SchedulerConfig

	mu        sync.Mutex
	lastError error
}

// NewScheduler builds a Scheduler.
func NewScheduler(sources SourceStore, pipeline IngestPipeline, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{sources: sources, pipeline: pipeline, cfg: cfg.withDefaults()}
}

// Tick selects up to MaxSourcesPerTick due sources and dispatches one
// fetch job per source. Dispatch errors are logged and do not mutate
// scheduling fields (spec.md §4.1 "Failure semantics").
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := s.sources.SelectDue(ctx, now, s.cfg.MaxSourcesPerTick)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, src := range due {
		wg.Add(1)
		go func(source *domain.Source) {
			defer wg.Done()
			s.dispatch(ctx, source)
		}(src)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, source *domain.Source) {
	err := s.pipeline.FetchAndIngest(ctx, source)
	if err != nil {
		logger.Error("scheduler: dispatch failed, leaving row eligible for next tick",
			"source_id", source.ID, "error", err.Error())
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
	}
}

// NextFetchOnSuccess computes next_fetch_at after a successful fetch that
// returned itemCount items, applying the empty-streak cooldown
// (spec.md §4.1).
func NextFetchOnSuccess(source *domain.Source, itemCount int, cfg SchedulerConfig, now time.Time) (nextFetchAt time.Time, newEmptyStreak int) {
	cfg = cfg.withDefaults()
	interval := time.Duration(source.FetchIntervalSec) * time.Second

	if itemCount == 0 {
		newEmptyStreak = source.EmptyStreak + 1
	} else {
		newEmptyStreak = 0
	}

	effectiveInterval := interval
	if newEmptyStreak >= cfg.EmptyStreakThreshold {
		effectiveInterval = time.Duration(float64(interval) * cfg.EmptyStreakCooldownFactor)
	}

	maxBackoff := time.Duration(domain.MaxBackoffSec) * time.Second
	if effectiveInterval > maxBackoff {
		effectiveInterval = maxBackoff
	}

	return now.Add(effectiveInterval), newEmptyStreak
}

// NextFetchOnFailure computes next_fetch_at after a failed fetch using
// exponential backoff capped at 4h (spec.md §4.1, §8 property 4):
// next = now + min(interval * 2^error_streak, 14400s).
func NextFetchOnFailure(source *domain.Source, now time.Time) (nextFetchAt time.Time, newErrorStreak int) {
	newErrorStreak = source.ErrorStreak + 1
	interval := float64(source.FetchIntervalSec)
	backoffSec := interval * math.Pow(2, float64(newErrorStreak))
	if backoffSec > domain.MaxBackoffSec {
		backoffSec = domain.MaxBackoffSec
	}
	return now.Add(time.Duration(backoffSec) * time.Second), newErrorStreak
}
