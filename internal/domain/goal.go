package domain

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// GoalStatus enumerates the lifecycle of a Goal. Only ACTIVE goals
// participate in matching.
type GoalStatus string

const (
	GoalActive   GoalStatus = "ACTIVE"
	GoalPaused   GoalStatus = "PAUSED"
	GoalArchived GoalStatus = "ARCHIVED"
)

// PriorityMode controls how a missing MUST term is treated.
type PriorityMode string

const (
	PriorityModeSoft PriorityMode = "SOFT"
	PriorityModeHard PriorityMode = "HARD"
)

// Goal is a user-defined interest that Items are scored against.
type Goal struct {
	ID              string       `json:"id" db:"id"`
	UserID          string       `json:"user_id" db:"user_id"`
	Name            string       `json:"name" db:"name"`
	Description     string       `json:"description" db:"description"`
	Status          GoalStatus   `json:"status" db:"status"`
	PriorityMode    PriorityMode `json:"priority_mode" db:"priority_mode"`
	TimeWindowDays  int          `json:"time_window_days" db:"time_window_days"`
	// DescriptorEmbedding is the precomputed embedding of name+description,
	// used by the match engine's cosine similarity feature.
	DescriptorEmbedding *pgvector.Vector `json:"-" db:"descriptor_embedding"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
	IsDeleted       bool         `json:"is_deleted" db:"is_deleted"`
}

// DescriptorText is the text embedded to produce DescriptorEmbedding.
func (g *Goal) DescriptorText() string {
	return g.Name + " " + g.Description
}

// TermType enumerates how a GoalPriorityTerm participates in scoring.
type TermType string

const (
	TermMust     TermType = "MUST"
	TermPriority TermType = "PRIORITY"
	TermNegative TermType = "NEGATIVE"
)

// GoalPriorityTerm is a single keyword attached to a Goal.
type GoalPriorityTerm struct {
	ID       string   `json:"id" db:"id"`
	GoalID   string   `json:"goal_id" db:"goal_id"`
	Term     string   `json:"term" db:"term"`
	TermType TermType `json:"term_type" db:"term_type"`
}

// MaxBatchWindows is the cap on GoalPushConfig.BatchWindows (spec.md §3).
const MaxBatchWindows = 3

// GoalPushConfig holds a Goal's delivery preferences.
type GoalPushConfig struct {
	GoalID           string   `json:"goal_id" db:"goal_id"`
	BatchWindows     []string `json:"batch_windows" db:"batch_windows"` // "HH:MM", len <= 3
	DigestSendTime   string   `json:"digest_send_time" db:"digest_send_time"`
	ImmediateEnabled bool     `json:"immediate_enabled" db:"immediate_enabled"`
	BatchEnabled     bool     `json:"batch_enabled" db:"batch_enabled"`
	DigestEnabled    bool     `json:"digest_enabled" db:"digest_enabled"`
}
