package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/httpretry"
)

// NewsNowFetcher polls a NewsNow-style aggregator catalog: GET
// base_url + "/api/sources/{source_id}" returning a map of catalog
// records (spec.md §4.2, §6).
type NewsNowFetcher struct {
	client *httpretry.RetryClient
	opts   Options
}

// NewNewsNowFetcher builds a NewsNowFetcher.
func NewNewsNowFetcher(opts Options) *NewsNowFetcher {
	opts = opts.withDefaults()
	httpClient := &http.Client{Timeout: opts.Timeout}
	return &NewsNowFetcher{
		client: httpretry.NewRetryClient(httpClient, opts.MaxRetries),
		opts:   opts,
	}
}

// newsNowRecord mirrors one entry of the catalog response (spec.md §6).
type newsNowRecord struct {
	Name     string      `json:"name"`
	Title    string      `json:"title"`
	Interval int64       `json:"interval"`
	Disable  interface{} `json:"disable"`
	Redirect string      `json:"redirect"`
	Link     string      `json:"link"`
	Snippet  string      `json:"snippet"`
}

// isDisabled interprets the catalog's disable field: "cf" means NOT
// disabled; any other truthy value disables the record (spec.md §6).
func isDisabled(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		if val == "" || strings.EqualFold(val, "cf") {
			return false
		}
		return true
	default:
		return true
	}
}

// Fetch implements Fetcher for SourceNewsNow.
func (f *NewsNowFetcher) Fetch(ctx context.Context, cfg domain.SourceConfig, maxItems int) FetchResult {
	start := time.Now()
	if cfg.BaseURL == "" || cfg.SourceID == "" {
		return FetchResult{Status: StatusFailed, Error: fmt.Errorf("newsnow: missing base_url or source_id"), DurationMs: elapsedMs(start)}
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/sources/" + cfg.SourceID

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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
			Error:      fmt.Errorf("newsnow: %s returned status %d", endpoint, resp.StatusCode),
			DurationMs: elapsedMs(start),
		}
	}

	var catalog map[string]newsNowRecord
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return FetchResult{Status: StatusFailed, Error: fmt.Errorf("newsnow: decode error: %w", err), DurationMs: elapsedMs(start)}
	}

	var items []FetchedItem
	skipped := 0
	for id, rec := range catalog {
		if len(items) >= maxItems {
			break
		}
		if isDisabled(rec.Disable) {
			continue
		}
		link := rec.Link
		if link == "" {
			link = rec.Redirect
		}
		if link == "" {
			skipped++
			continue
		}
		title := rec.Title
		if title == "" {
			title = rec.Name
		}
		if title == "" {
			title = id
		}
		items = append(items, FetchedItem{URL: link, Title: title, Snippet: rec.Snippet})
	}

	status := StatusOK
	if skipped > 0 && len(items) == 0 {
		status = StatusFailed
	} else if skipped > 0 {
		status = StatusPartial
	}

	return FetchResult{Status: status, Items: items, DurationMs: elapsedMs(start)}
}
