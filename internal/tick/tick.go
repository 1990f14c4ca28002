// Package tick implements the Timer Tick (C10, spec.md §4.9): a set of
// independent interval tickers that drive every other component's Tick
// method. A missed tick is benign — each tick only ever acts on
// whatever is currently due, never on a queue of missed work.
package tick

import (
	"context"
	"sync"
	"time"

	"github.com/dida1024/sentrycore/internal/pkg/distlock"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// Job is one periodically-invoked unit of work. Name is used for log
// correlation only.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Jobs on independent tickers. Each job's
// own ticker means a slow job never delays the others (spec.md §4.9:
// "ticks are independent; a slow scheduler tick does not delay the
// embedding tick").
//
// Locker, if set, is consulted before every job run: it's how multiple
// server replicas avoid running the same job concurrently. A job whose
// lock is held elsewhere is skipped for that tick, not queued.
type Scheduler struct {
	jobs   []Job
	Locker func(jobName string) distlock.DistLock
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler builds a Scheduler. jobs with a zero Interval are
// rejected by Start (programmer error, not a runtime condition).
func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, stopCh: make(chan struct{})}
}

// Start launches one goroutine per job and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		if j.Interval <= 0 {
			logger.Error("tick: job has no interval, skipping", "job", j.Name)
			continue
		}
		s.wg.Add(1)
		go s.runLoop(ctx, j)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, j Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, j)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	if s.Locker != nil {
		lock := s.Locker(j.Name)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			logger.Error("tick: lock acquire failed", "job", j.Name, "error", err.Error())
			return
		}
		if !acquired {
			logger.Debug("tick: skipping, lock held by another replica", "job", j.Name)
			return
		}
		defer lock.Release(ctx)
	}

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		logger.Error("tick: job failed", "job", j.Name, "error", err.Error())
		return
	}
	logger.Debug("tick: job completed", "job", j.Name, "duration_ms", time.Since(start).Milliseconds())
}

// Stop halts all job loops and waits for them to exit.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Standard job intervals (spec.md §4.9).
const (
	SchedulerSweepInterval = 60 * time.Second
	EmbedPendingInterval   = 60 * time.Second
	BatchWindowInterval    = 60 * time.Second
	DigestInterval         = 60 * time.Second
	ImmediateFlushInterval = 60 * time.Second
	BudgetHourlyInterval   = time.Hour
	HealthCheckInterval    = 5 * time.Minute
)
