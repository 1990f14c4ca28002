// Package decision implements the Decision Pipeline (C7, spec.md §4.6):
// a linear node chain that turns a computed Match into zero or more
// ActionProposals for the Delivery Coalescer.
package decision

import (
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// Trigger identifies what raised this pipeline run.
type Trigger string

const (
	TriggerMatchComputed Trigger = "MATCH_COMPUTED"
	TriggerBatchWindow   Trigger = "BATCH_WINDOW_TICK"
	TriggerDigest        Trigger = "DIGEST_TICK"
)

// AgentState is the mutable record threaded through the node chain
// (spec.md §4.6 "State").
type AgentState struct {
	Trigger Trigger

	Goal  *domain.Goal
	Item  *domain.Item
	Match *domain.GoalItemMatch

	BudgetFlags domain.BudgetFlags
	Thresholds  Thresholds

	// BlockedSource, when true, means the (user, goal?, source) tuple is
	// explicitly blocked, independent of the match score.
	BlockedSource bool
	SourceName    string

	Bucket       domain.DecisionBucket
	BlockReasons []string
	LLMUsed      bool
	FallbackReason string

	Proposals []domain.ActionProposal

	// halted stops the chain early once a veto has fired.
	halted bool
	now    time.Time
}

// NewState builds an initial AgentState for a single (Goal, Item,
// GoalItemMatch) triple.
func NewState(trigger Trigger, goal *domain.Goal, item *domain.Item, m *domain.GoalItemMatch, flags domain.BudgetFlags, thresholds Thresholds, blocked bool, sourceName string) *AgentState {
	return &AgentState{
		Trigger:     trigger,
		Goal:        goal,
		Item:        item,
		Match:       m,
		BudgetFlags: flags,
		Thresholds:  thresholds.withDefaults(),
		BlockedSource: blocked,
		SourceName:  sourceName,
		now:         time.Now(),
	}
}

func (s *AgentState) halt() { s.halted = true }

// Thresholds configures the Bucket node's score ranges (spec.md §4.6).
type Thresholds struct {
	Immediate float64
	Boundary  float64
	Batch     float64
}

// DefaultThresholds mirrors the table in spec.md §4.6.
var DefaultThresholds = Thresholds{Immediate: 0.93, Boundary: 0.88, Batch: 0.75}

func (t Thresholds) withDefaults() Thresholds {
	if t == (Thresholds{}) {
		return DefaultThresholds
	}
	return t
}
