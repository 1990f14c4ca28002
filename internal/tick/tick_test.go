package tick

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dida1024/sentrycore/internal/pkg/distlock"
)

func TestScheduler_RunsJobOnInterval(t *testing.T) {
	var count int64
	s := NewScheduler(Job{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&count), int64(3))
}

func TestScheduler_JobErrorDoesNotStopOtherTicks(t *testing.T) {
	var failCount, okCount int64
	s := NewScheduler(
		Job{
			Name:     "failing",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&failCount, 1)
				return assert.AnError
			},
		},
		Job{
			Name:     "ok",
			Interval: 10 * time.Millisecond,
			Run: func(ctx context.Context) error {
				atomic.AddInt64(&okCount, 1)
				return nil
			},
		},
	)

	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&failCount), int64(3))
	assert.GreaterOrEqual(t, atomic.LoadInt64(&okCount), int64(3))
}

func TestScheduler_StopHaltsAllLoops(t *testing.T) {
	var count int64
	s := NewScheduler(Job{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	after := atomic.LoadInt64(&count)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, after, atomic.LoadInt64(&count))
}

func TestScheduler_ZeroIntervalJobIsSkipped(t *testing.T) {
	var count int64
	s := NewScheduler(Job{
		Name:     "bad",
		Interval: 0,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(0), atomic.LoadInt64(&count))
}

// fakeLock never grants the lock, simulating another replica holding it.
type fakeLock struct{ acquired bool }

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) { return l.acquired, nil }
func (l *fakeLock) Release(ctx context.Context) error         { return nil }

var _ distlock.DistLock = (*fakeLock)(nil)

func TestScheduler_SkipsRunWhenLockHeldElsewhere(t *testing.T) {
	var count int64
	s := NewScheduler(Job{
		Name:     "locked",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		},
	})
	s.Locker = func(jobName string) distlock.DistLock { return &fakeLock{acquired: false} }

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(0), atomic.LoadInt64(&count))
}

func TestScheduler_RunsWhenLockGranted(t *testing.T) {
	var count int64
	s := NewScheduler(Job{
		Name:     "unlocked",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		},
	})
	s.Locker = func(jobName string) distlock.DistLock { return &fakeLock{acquired: true} }

	s.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt64(&count), int64(2))
}
