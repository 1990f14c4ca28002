package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/httpretry"
)

// RSSFetcher fetches and parses Atom/RSS feeds via gofeed, retrying
// transient failures through httpretry.
type RSSFetcher struct {
	client *httpretry.RetryClient
	parser *gofeed.Parser
	opts   Options
}

// NewRSSFetcher builds an RSSFetcher.
func NewRSSFetcher(opts Options) *RSSFetcher {
	opts = opts.withDefaults()
	httpClient := &http.Client{Timeout: opts.Timeout}
	return &RSSFetcher{
		client: httpretry.NewRetryClient(httpClient, opts.MaxRetries),
		parser: gofeed.NewParser(),
		opts:   opts,
	}
}

// Fetch implements Fetcher for SourceRSS.
func (f *RSSFetcher) Fetch(ctx context.Context, cfg domain.SourceConfig, maxItems int) FetchResult {
	start := time.Now()
	if cfg.FeedURL == "" {
		return FetchResult{Status: StatusFailed, Error: fmt.Errorf("rss: missing feed_url"), DurationMs: elapsedMs(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.FeedURL, nil)
	if err != nil {
		return FetchResult{Status: StatusFailed, Error: err, DurationMs: elapsedMs(start)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FetchResult{Status: StatusFailed, Error: err, DurationMs: elapsedMs(start)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{
			Status:     StatusFailed,
			Error:      fmt.Errorf("rss: %s returned status %d", cfg.FeedURL, resp.StatusCode),
			DurationMs: elapsedMs(start),
		}
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return FetchResult{Status: StatusFailed, Error: fmt.Errorf("rss: parse error: %w", err), DurationMs: elapsedMs(start)}
	}

	items := make([]FetchedItem, 0, min(len(feed.Items), maxItems))
	skipped := 0
	for _, it := range feed.Items {
		if len(items) >= maxItems {
			break
		}
		if it.Link == "" {
			skipped++
			continue
		}
		fi := FetchedItem{
			URL:     it.Link,
			Title:   it.Title,
			Snippet: it.Description,
		}
		if it.PublishedParsed != nil {
			fi.PublishedAt = it.PublishedParsed
		}
		items = append(items, fi)
	}

	status := StatusOK
	if skipped > 0 && len(items) == 0 {
		status = StatusFailed
	} else if skipped > 0 {
		status = StatusPartial
	}

	return FetchResult{Status: status, Items: items, DurationMs: elapsedMs(start)}
}
