package domain

import "time"

// MatchFeatures is the feature vector computed by the match engine
// (spec.md §4.5), persisted as features_json.
type MatchFeatures struct {
	CosSim           float64 `json:"cos_sim"`
	MustHit          bool    `json:"must_hit"`
	PriorityHitCount int     `json:"priority_hit_count"`
	NegativeHit      bool    `json:"negative_hit"`
	Freshness        float64 `json:"freshness"`
	SourceAffinity   float64 `json:"source_affinity"`
}

// MatchReasons is the evidence trail attached to a GoalItemMatch,
// persisted as reasons_json.
type MatchReasons struct {
	MatchedMustTerms     []string           `json:"matched_must_terms,omitempty"`
	MatchedPriorityTerms []string           `json:"matched_priority_terms,omitempty"`
	MatchedNegativeTerms []string           `json:"matched_negative_terms,omitempty"`
	Contributions        map[string]float64 `json:"contributions"`
	SourceName           string             `json:"source_name"`
}

// GoalItemMatch is a scored (Goal, Item) pair.
type GoalItemMatch struct {
	ID          string        `json:"id" db:"id"`
	GoalID      string        `json:"goal_id" db:"goal_id"`
	ItemID      string        `json:"item_id" db:"item_id"`
	MatchScore  float64       `json:"match_score" db:"match_score"`
	Features    MatchFeatures `json:"features_json" db:"features_json"`
	Reasons     MatchReasons  `json:"reasons_json" db:"reasons_json"`
	TopicKey    string        `json:"topic_key" db:"topic_key"`
	ItemTime    time.Time     `json:"item_time" db:"item_time"`
	ComputedAt  time.Time     `json:"computed_at" db:"computed_at"`
}

// MatchComputed is the event raised by the match engine and consumed by
// the decision pipeline.
type MatchComputed struct {
	GoalID string
	ItemID string
	Score  float64
}
