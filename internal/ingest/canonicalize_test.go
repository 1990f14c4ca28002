package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeURL_Idempotent(t *testing.T) {
	urls := []string{
		"https://www.Example.com/A/?utm_source=x&b=2&a=1",
		"https://example.com/a?b=2&a=1#frag",
		"HTTP://Example.COM/foo/bar/",
		"example.com/foo?spm=1&ref=2",
	}
	for _, u := range urls {
		c1, err := CanonicalizeURL(u)
		require.NoError(t, err)
		c2, err := CanonicalizeURL(c1)
		require.NoError(t, err)
		assert.Equal(t, c1, c2, "canonicalize should be idempotent for %q", u)
	}
}

func TestCanonicalizeURL_TrackingParamsStripped(t *testing.T) {
	withTracking, err := CanonicalizeURL("https://example.com/a?utm_source=x&utm_campaign=y&b=2&a=1")
	require.NoError(t, err)
	without, err := CanonicalizeURL("https://example.com/a?b=2&a=1")
	require.NoError(t, err)
	assert.Equal(t, without, withTracking)
}

func TestCanonicalizeURL_FixedTrackingSet(t *testing.T) {
	for _, key := range []string{"spm", "from", "ref", "source"} {
		withParam, err := CanonicalizeURL("https://example.com/a?" + key + "=x&b=2")
		require.NoError(t, err)
		without, err := CanonicalizeURL("https://example.com/a?b=2")
		require.NoError(t, err)
		assert.Equal(t, without, withParam, "tracking key %q should be stripped", key)
	}
}

func TestCanonicalizeURL_SchemeCaseHostWWWTrailingSlash(t *testing.T) {
	c1, err := CanonicalizeURL("HTTPS://WWW.Example.com/Path/")
	require.NoError(t, err)
	c2, err := CanonicalizeURL("https://example.com/path")
	require.NoError(t, err)
	assert.Equal(t, c2, c1)
}

func TestCanonicalizeURL_FragmentDropped(t *testing.T) {
	c1, err := CanonicalizeURL("https://example.com/a#section-2")
	require.NoError(t, err)
	c2, err := CanonicalizeURL("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, c2, c1)
}

func TestCanonicalizeURL_RootPathKeepsSlash(t *testing.T) {
	c, err := CanonicalizeURL("https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", c)
}

func TestCanonicalizeURL_QueryKeysSortedAndLowercased(t *testing.T) {
	c1, err := CanonicalizeURL("https://example.com/a?B=2&A=1")
	require.NoError(t, err)
	c2, err := CanonicalizeURL("https://example.com/a?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, c2, c1)
}

// TestTopicKeyStability covers spec.md §8 property 2 and scenario S1: two
// URLs differing only in fragment / tracking params / scheme case /
// trailing slash / www. must produce identical topic keys.
func TestTopicKeyStability(t *testing.T) {
	a, err := CanonicalizeURL("https://www.Example.com/A/?utm_source=x&b=2&a=1")
	require.NoError(t, err)
	b, err := CanonicalizeURL("https://example.com/a?b=2&a=1#frag")
	require.NoError(t, err)

	assert.Equal(t, TopicKey(a), TopicKey(b))
	assert.Equal(t, URLHash(a), URLHash(b))
	assert.Len(t, TopicKey(a), TopicKeyLen)
}

func TestTopicKey_DifferentURLsDiffer(t *testing.T) {
	a, _ := CanonicalizeURL("https://example.com/a")
	b, _ := CanonicalizeURL("https://example.com/b")
	assert.NotEqual(t, TopicKey(a), TopicKey(b))
}
