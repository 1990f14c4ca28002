package coalescer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/coalescer/mail"
	"github.com/dida1024/sentrycore/internal/domain"
)

type fakeOutboxStore struct {
	due           []*OutboxEntry
	sent          []string
	retried       map[string]int
	deadLettered  []string
}

func newFakeOutboxStore(entries ...*OutboxEntry) *fakeOutboxStore {
	return &fakeOutboxStore{due: entries, retried: map[string]int{}}
}

func (f *fakeOutboxStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*OutboxEntry, error) {
	return f.due, nil
}
func (f *fakeOutboxStore) MarkSent(ctx context.Context, entryID string) error {
	f.sent = append(f.sent, entryID)
	return nil
}
func (f *fakeOutboxStore) MarkFailedRetry(ctx context.Context, entryID string, nextAttempt time.Time, attempts int) error {
	f.retried[entryID] = attempts
	return nil
}
func (f *fakeOutboxStore) MarkDeadLettered(ctx context.Context, entryID string) error {
	f.deadLettered = append(f.deadLettered, entryID)
	return nil
}

type fakeMailSender struct {
	err error
}

func (f *fakeMailSender) Send(ctx context.Context, msg mail.Message) error { return f.err }

func TestOutboxWorker_Drain_SuccessMarksSent(t *testing.T) {
	entry := &OutboxEntry{ID: "o1", DecisionID: "d1"}
	store := newFakeOutboxStore(entry)
	decisions := &fakeDecisionStore{byDedupe: map[string]*domain.PushDecisionRecord{}}
	w := NewOutboxWorker(store, &fakeMailSender{}, decisions)

	require.NoError(t, w.Drain(context.Background(), time.Now(), 10))

	assert.Contains(t, store.sent, "o1")
	assert.Contains(t, decisions.sent, "d1")
}

func TestOutboxWorker_Drain_RetriesOnFailure(t *testing.T) {
	entry := &OutboxEntry{ID: "o2", DecisionID: "d2", Attempts: 1}
	store := newFakeOutboxStore(entry)
	w := NewOutboxWorker(store, &fakeMailSender{err: errors.New("smtp down")}, nil)

	require.NoError(t, w.Drain(context.Background(), time.Now(), 10))

	assert.Equal(t, 2, store.retried["o2"])
	assert.Empty(t, store.sent)
}

func TestOutboxWorker_Drain_DeadLettersAfterMaxAttempts(t *testing.T) {
	entry := &OutboxEntry{ID: "o3", DecisionID: "d3", Attempts: OutboxMaxAttempts - 1}
	store := newFakeOutboxStore(entry)
	decisions := &fakeDecisionStore{byDedupe: map[string]*domain.PushDecisionRecord{}}
	w := NewOutboxWorker(store, &fakeMailSender{err: errors.New("smtp down")}, decisions)

	require.NoError(t, w.Drain(context.Background(), time.Now(), 10))

	assert.Contains(t, store.deadLettered, "o3")
	assert.Contains(t, decisions.failed, "d3")
}

func TestBackoffDelay_CapsAtOneHour(t *testing.T) {
	assert.Equal(t, OutboxBackoffCap, backoffDelay(20))
}

func TestBackoffDelay_Exponential(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDelay(1))
	assert.Equal(t, 4*time.Second, backoffDelay(2))
}
