package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Sample Feed</title>
<item><title>First Post</title><link>https://example.com/first</link><description>first snippet</description></item>
<item><title>Second Post</title><link>https://example.com/second</link><description>second snippet</description></item>
</channel></rss>`

func TestRSSFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	f := NewRSSFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{FeedURL: srv.URL}, 10)

	require.Equal(t, StatusOK, result.Status)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "https://example.com/first", result.Items[0].URL)
	assert.Equal(t, "First Post", result.Items[0].Title)
}

func TestRSSFetcher_MaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	f := NewRSSFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{FeedURL: srv.URL}, 1)

	require.Equal(t, StatusOK, result.Status)
	assert.Len(t, result.Items, 1)
}

func TestRSSFetcher_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewRSSFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{FeedURL: srv.URL}, 10)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Error(t, result.Error)
}

func TestRSSFetcher_MissingFeedURL(t *testing.T) {
	f := NewRSSFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{}, 10)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestRSSFetcher_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not xml at all"))
	}))
	defer srv.Close()

	f := NewRSSFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{FeedURL: srv.URL}, 10)
	assert.Equal(t, StatusFailed, result.Status)
}
