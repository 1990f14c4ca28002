// Package domain holds the entities and enums of the SentryCore data
// model: sources, items, goals, matches, decisions, budget and ingest
// log rows. Types mirror the relational schema (see repository/postgres)
// with `db` tags for column scanning and `json` tags for event payloads.
package domain

import "time"

// SourceType enumerates the fetcher backends a Source can use.
type SourceType string

const (
	SourceNewsNow SourceType = "NEWSNOW"
	SourceRSS     SourceType = "RSS"
	SourceSite    SourceType = "SITE"
)

// Source is a persistent, schedulable feed of postings.
type Source struct {
	ID              string     `json:"id" db:"id"`
	Type            SourceType `json:"type" db:"type"`
	Name            string     `json:"name" db:"name"`
	OwnerID         *string    `json:"owner_id" db:"owner_id"`
	IsPrivate       bool       `json:"is_private" db:"is_private"`
	Enabled         bool       `json:"enabled" db:"enabled"`
	FetchIntervalSec int       `json:"fetch_interval_sec" db:"fetch_interval_sec"`
	NextFetchAt     *time.Time `json:"next_fetch_at" db:"next_fetch_at"`
	LastFetchAt     *time.Time `json:"last_fetch_at" db:"last_fetch_at"`
	ErrorStreak     int        `json:"error_streak" db:"error_streak"`
	EmptyStreak     int        `json:"empty_streak" db:"empty_streak"`
	Config          SourceConfig `json:"config" db:"config"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	IsDeleted       bool       `json:"is_deleted" db:"is_deleted"`
}

// SourceConfig is a union of the per-type configuration shapes. Only the
// field(s) relevant to Type are populated; it is persisted as JSONB.
type SourceConfig struct {
	// NEWSNOW
	BaseURL  string `json:"base_url,omitempty"`
	SourceID string `json:"source_id,omitempty"`

	// RSS
	FeedURL string `json:"feed_url,omitempty"`

	// SITE
	ListURL   string           `json:"list_url,omitempty"`
	Selectors SiteSelectorSet  `json:"selectors,omitempty"`
}

// SiteSelectorSet names the CSS-like selectors used to scrape a list page.
type SiteSelectorSet struct {
	Item    string `json:"item"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// SourceSubscription ties a user to a source they want items from.
type SourceSubscription struct {
	UserID   string `json:"user_id" db:"user_id"`
	SourceID string `json:"source_id" db:"source_id"`
	Enabled  bool   `json:"enabled" db:"enabled"`
}

// MinFetchIntervalSec is the floor on Source.FetchIntervalSec (spec.md §3).
const MinFetchIntervalSec = 60

// MaxBackoffSec is the backoff ceiling applied by the fetch scheduler
// (spec.md §4.1): 4 hours.
const MaxBackoffSec = 14400
