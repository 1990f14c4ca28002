package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Parameters starting with trackingParamPrefix or named in
// trackingParamNames are dropped from the query
// string during canonicalization (spec.md §4.3 step 3).
var trackingParamNames = map[string]struct{}{
	"spm":    {},
	"from":   {},
	"ref":    {},
	"source": {},
}

const trackingParamPrefix = "utm_"

// CanonicalizeURL implements canonicalize_url_for_topic (spec.md §4.3):
//  1. trim, lowercase scheme (default https) and host, strip leading www.
//  2. drop fragment
//  3. drop utm_* / tracking query keys
//  4. lowercase remaining keys, sort pairs, re-encode
//  5. lowercase path, strip trailing slash (except root)
//
// It is idempotent: CanonicalizeURL(CanonicalizeURL(u)) == CanonicalizeURL(u).
func CanonicalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")

	u.Fragment = ""

	query := u.Query()
	cleaned := url.Values{}
	for key, values := range query {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, trackingParamPrefix) {
			continue
		}
		if _, tracked := trackingParamNames[lk]; tracked {
			continue
		}
		cleaned[lk] = values
	}

	path := strings.ToLower(u.Path)
	if path != "" && path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}

	canon := scheme + "://" + host + path
	if encoded := encodeSortedQuery(cleaned); encoded != "" {
		canon += "?" + encoded
	}
	return canon, nil
}

// encodeSortedQuery re-encodes query values with keys sorted
// lexicographically, for deterministic canonical output.
func encodeSortedQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// TopicKeyLen is the length, in hex characters, of a topic_key
// (spec.md §3: "32 hex chars").
const TopicKeyLen = 32

// URLHashLen is the length, in hex characters, of a url_hash.
const URLHashLen = 40

// TopicKey computes the 32-hex-char dedupe key from a canonical URL.
func TopicKey(canonicalURL string) string {
	return hashHex(canonicalURL, TopicKeyLen)
}

// URLHash computes the url_hash over the same canonical form as TopicKey,
// used by the storage layer's unique index for cross-source dedupe.
func URLHash(canonicalURL string) string {
	return hashHex(canonicalURL, URLHashLen)
}

func hashHex(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	h := hex.EncodeToString(sum[:])
	if n >= len(h) {
		return h
	}
	return h[:n]
}
