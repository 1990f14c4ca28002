package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
)

const sampleCatalog = `{
  "hn": {"name": "hn", "title": "Hacker News", "link": "https://news.ycombinator.com/item?id=1"},
  "blocked": {"name": "blocked", "title": "Blocked", "link": "https://example.com/x", "disable": true},
  "cf-flagged": {"name": "cf", "title": "Still On", "link": "https://example.com/cf", "disable": "cf"}
}`

func TestNewsNowFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sources/mysrc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleCatalog))
	}))
	defer srv.Close()

	f := NewNewsNowFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{BaseURL: srv.URL, SourceID: "mysrc"}, 10)

	require.Equal(t, StatusOK, result.Status)
	// "blocked" is excluded; "hn" and "cf-flagged" (disable="cf" means NOT disabled) remain.
	assert.Len(t, result.Items, 2)
}

func TestIsDisabled(t *testing.T) {
	assert.False(t, isDisabled(nil))
	assert.False(t, isDisabled("cf"))
	assert.False(t, isDisabled("CF"))
	assert.False(t, isDisabled(""))
	assert.True(t, isDisabled(true))
	assert.True(t, isDisabled("yes"))
	assert.True(t, isDisabled(1.0))
}

func TestNewsNowFetcher_MissingConfig(t *testing.T) {
	f := NewNewsNowFetcher(Options{})
	result := f.Fetch(t.Context(), domain.SourceConfig{}, 10)
	assert.Equal(t, StatusFailed, result.Status)
}
