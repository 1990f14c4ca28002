package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/dida1024/sentrycore/internal/coalescer"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// immediateBufferKeyPrefix mirrors coalescer's unexported bufferKey
// format ("buffer:immediate:<goal_id>:<bucket>"); PendingBuckets returns
// raw Redis keys in this shape.
const immediateBufferKeyPrefix = "buffer:immediate:"

// ImmediateDispatcher seals completed 5-minute immediate buckets and
// hands the result to the Notifier (spec.md §4.7 "Immediate").
type ImmediateDispatcher struct {
	buffer   *coalescer.ImmediateBuffer
	notifier *Notifier
}

// NewImmediateDispatcher builds an ImmediateDispatcher.
func NewImmediateDispatcher(buffer *coalescer.ImmediateBuffer, notifier *Notifier) *ImmediateDispatcher {
	return &ImmediateDispatcher{buffer: buffer, notifier: notifier}
}

// Tick seals every pending bucket strictly older than the current
// bucket (the current bucket is still accepting Adds).
func (d *ImmediateDispatcher) Tick(ctx context.Context) error {
	keys, err := d.buffer.PendingBuckets(ctx)
	if err != nil {
		return err
	}
	currentBucket := coalescer.ImmediateBucketKey(time.Now())

	for _, key := range keys {
		goalID, bucket, ok := parseImmediateBufferKey(key)
		if !ok || bucket >= currentBucket {
			continue
		}
		result, err := d.buffer.Seal(ctx, goalID, bucket)
		if err != nil {
			logger.Error("app: seal immediate bucket failed", "key", key, "error", err.Error())
			continue
		}
		if len(result.Sent) == 0 && len(result.Demoted) == 0 {
			continue
		}
		d.notifier.SendImmediate(ctx, result)
	}
	return nil
}

func parseImmediateBufferKey(key string) (goalID string, bucket int64, ok bool) {
	rest := strings.TrimPrefix(key, immediateBufferKeyPrefix)
	if rest == key {
		return "", 0, false
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, false
	}
	goalID = rest[:idx]
	bucket, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return goalID, bucket, true
}

// BatchDispatcher runs the batch-window drain every tick and hands
// drained batches to the Notifier (spec.md §4.7 "Batch").
type BatchDispatcher struct {
	window   *coalescer.BatchWindow
	notifier *Notifier
}

// NewBatchDispatcher builds a BatchDispatcher.
func NewBatchDispatcher(window *coalescer.BatchWindow, notifier *Notifier) *BatchDispatcher {
	return &BatchDispatcher{window: window, notifier: notifier}
}

// Tick drains any goal whose batch_windows matches the current minute,
// using 24h ago as the prior-window marker since a batch window fires
// at most once a day at its configured HH:MM.
func (d *BatchDispatcher) Tick(ctx context.Context) error {
	now := time.Now()
	batches, err := d.window.Tick(ctx, now, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}
	d.notifier.SendBatches(ctx, batches)
	return nil
}

// DigestDispatcher runs the digest drain every tick and hands drained
// digests to the Notifier (spec.md §4.7 "Digest").
type DigestDispatcher struct {
	digest   *coalescer.Digest
	notifier *Notifier
}

// NewDigestDispatcher builds a DigestDispatcher.
func NewDigestDispatcher(digest *coalescer.Digest, notifier *Notifier) *DigestDispatcher {
	return &DigestDispatcher{digest: digest, notifier: notifier}
}

// Tick drains any goal whose digest_send_time matches the current
// minute.
func (d *DigestDispatcher) Tick(ctx context.Context) error {
	batches, err := d.digest.Tick(ctx, time.Now())
	if err != nil {
		return err
	}
	d.notifier.SendDigests(ctx, batches)
	return nil
}

// OutboxDispatcher drains due outbox entries every tick (spec.md §4.7
// "Send path").
type OutboxDispatcher struct {
	worker *coalescer.OutboxWorker
	limit  int
}

// NewOutboxDispatcher builds an OutboxDispatcher. limit defaults to 100.
func NewOutboxDispatcher(worker *coalescer.OutboxWorker, limit int) *OutboxDispatcher {
	if limit <= 0 {
		limit = 100
	}
	return &OutboxDispatcher{worker: worker, limit: limit}
}

// Tick drains up to limit due outbox entries.
func (d *OutboxDispatcher) Tick(ctx context.Context) error {
	return d.worker.Drain(ctx, time.Now(), d.limit)
}
