package domain

import "time"

// DecisionBucket is the routing outcome chosen by the decision pipeline.
type DecisionBucket string

const (
	DecisionImmediate DecisionBucket = "IMMEDIATE"
	// DecisionBoundary is a transient bucket consumed by the BoundaryJudge
	// node; it never reaches EmitActions (spec.md §4.6 Node 2-3).
	DecisionBoundary DecisionBucket = "BOUNDARY"
	DecisionBatch    DecisionBucket = "BATCH"
	DecisionDigest   DecisionBucket = "DIGEST"
	DecisionIgnore   DecisionBucket = "IGNORE"
)

// DecisionStatus tracks a PushDecisionRecord through delivery.
type DecisionStatus string

const (
	StatusPending DecisionStatus = "PENDING"
	StatusSent    DecisionStatus = "SENT"
	StatusFailed  DecisionStatus = "FAILED"
	StatusSkipped DecisionStatus = "SKIPPED"
	StatusRead    DecisionStatus = "READ"
)

// Channel is the delivery transport of a decision.
type Channel string

const (
	ChannelEmail  Channel = "EMAIL"
	ChannelInApp  Channel = "IN_APP"
)

// ReasonEvidence is one entry in a PushDecisionRecord's reason_json list:
// which node produced it and why.
type ReasonEvidence struct {
	Node   string `json:"node"`
	Reason string `json:"reason"`
}

// PushDecisionRecord is an append-only record of one routing decision for
// a (goal, item) pair.
type PushDecisionRecord struct {
	ID         string           `json:"id" db:"id"`
	GoalID     string           `json:"goal_id" db:"goal_id"`
	ItemID     string           `json:"item_id" db:"item_id"`
	TopicKey   string           `json:"topic_key" db:"topic_key"`
	Decision   DecisionBucket   `json:"decision" db:"decision"`
	Status     DecisionStatus   `json:"status" db:"status"`
	Channel    Channel          `json:"channel" db:"channel"`
	Reasons    []ReasonEvidence `json:"reason_json" db:"reason_json"`
	Score      float64          `json:"score" db:"score"`
	ItemTime   time.Time        `json:"item_time" db:"item_time"`
	DecidedAt  time.Time        `json:"decided_at" db:"decided_at"`
	SentAt     *time.Time       `json:"sent_at" db:"sent_at"`
	DedupeKey  string           `json:"dedupe_key" db:"dedupe_key"`
}

// ActionProposal is the output of the decision pipeline's EmitActions
// node, queued to the delivery coalescer.
type ActionProposal struct {
	GoalID     string
	ItemID     string
	TopicKey   string
	Decision   DecisionBucket
	Channel    Channel
	Reasons    []ReasonEvidence
	Score      float64
	ItemTime   time.Time
	DecidedAt  time.Time
	DedupeKey  string
}
