package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/httpretry"
)

// SiteFetcher scrapes a list page with CSS selectors
// {item, title, link, snippet} (spec.md §4.2).
type SiteFetcher struct {
	client *httpretry.RetryClient
	opts   Options
}

// NewSiteFetcher builds a SiteFetcher.
func NewSiteFetcher(opts Options) *SiteFetcher {
	opts = opts.withDefaults()
	httpClient := &http.Client{Timeout: opts.Timeout}
	return &SiteFetcher{
		client: httpretry.NewRetryClient(httpClient, opts.MaxRetries),
		opts:   opts,
	}
}

// Fetch implements Fetcher for SourceSite.
func (f *SiteFetcher) Fetch(ctx context.Context, cfg domain.SourceConfig, maxItems int) FetchResult {
	start := time.Now()
	if cfg.ListURL == "" || cfg.Selectors.Item == "" || cfg.Selectors.Title == "" || cfg.Selectors.Link == "" {
		return FetchResult{Status: StatusFailed, Error: fmt.Errorf("site: missing list_url or required selectors"), DurationMs: elapsedMs(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ListURL, nil)
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
			Error:      fmt.Errorf("site: %s returned status %d", cfg.ListURL, resp.StatusCode),
			DurationMs: elapsedMs(start),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return FetchResult{Status: StatusFailed, Error: fmt.Errorf("site: parse error: %w", err), DurationMs: elapsedMs(start)}
	}

	var items []FetchedItem
	skipped := 0
	doc.Find(cfg.Selectors.Item).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if len(items) >= maxItems {
			return false
		}

		title := strings.TrimSpace(s.Find(cfg.Selectors.Title).First().Text())
		linkSel := s.Find(cfg.Selectors.Link).First()
		link, has := linkSel.Attr("href")
		if !has || link == "" {
			link, has = s.Attr("href")
		}
		if !has || link == "" || title == "" {
			skipped++
			return true
		}

		var snippet string
		if cfg.Selectors.Snippet != "" {
			snippet = strings.TrimSpace(s.Find(cfg.Selectors.Snippet).First().Text())
		}

		items = append(items, FetchedItem{URL: link, Title: title, Snippet: snippet})
		return true
	})

	status := StatusOK
	if skipped > 0 && len(items) == 0 {
		status = StatusFailed
	} else if skipped > 0 {
		status = StatusPartial
	}

	return FetchResult{Status: status, Items: items, DurationMs: elapsedMs(start)}
}
