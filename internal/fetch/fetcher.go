// Package fetch implements the Fetch Scheduler (C2) and the three
// Fetcher adapters (C3): NEWSNOW, RSS, SITE (spec.md §4.1, §4.2).
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// Status is the outcome of a single fetch call.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// FetchedItem is one posting returned by a Fetcher, prior to
// canonicalisation and persistence.
type FetchedItem struct {
	URL         string
	Title       string
	Snippet     string
	PublishedAt *time.Time
	Raw         string
}

// FetchResult is the output of one Fetcher.Fetch call.
type FetchResult struct {
	Status     Status
	Items      []FetchedItem
	Error      error
	DurationMs int64
}

// Fetcher is the single capability shared by the three source types
// (spec.md §4.2, §9 "Polymorphism over fetchers"): a closed set of three
// variants behind one interface, selected by a factory keyed on SourceType.
type Fetcher interface {
	Fetch(ctx context.Context, cfg domain.SourceConfig, maxItems int) FetchResult
}

// DefaultTimeout is the per-fetch network deadline (spec.md §4.2: ≤ 15s).
const DefaultTimeout = 15 * time.Second

// DefaultMaxRetries is the retry count. The delay between attempts comes
// from httpretry: full jitter over a 1s base doubled per attempt, with a
// 100ms floor; it is not limited to a sub-second window.
const DefaultMaxRetries = 2

// NewFetcher is the factory keyed on SourceType (spec.md §9).
func NewFetcher(t domain.SourceType, opts Options) (Fetcher, error) {
	switch t {
	case domain.SourceRSS:
		return NewRSSFetcher(opts), nil
	case domain.SourceNewsNow:
		return NewNewsNowFetcher(opts), nil
	case domain.SourceSite:
		return NewSiteFetcher(opts), nil
	default:
		return nil, fmt.Errorf("fetch: unknown source type %q", t)
	}
}

// Options configures a Fetcher's HTTP behavior.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	return o
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
