// Package app wires together the package-local pieces (pipeline, match,
// decision, coalescer, budget, tick) into the running SentryCore
// process. It plays the role the teacher's internal/engine package
// plays for campaign orchestration: no new domain logic lives here,
// only composition.
package app

import (
	"context"

	"github.com/dida1024/sentrycore/internal/decision"
	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// ItemGetter loads a single Item by ID.
type ItemGetter interface {
	GetByID(ctx context.Context, itemID string) (*domain.Item, error)
}

// GoalGetter loads a Goal and its owning user.
type GoalGetter interface {
	GetByID(ctx context.Context, goalID string) (*domain.Goal, error)
	GoalOwner(ctx context.Context, goalID string) (string, error)
}

// MatchGetter re-reads the score a MatchComputed event refers to.
type MatchGetter interface {
	GetByGoalAndItem(ctx context.Context, goalID, itemID string) (*domain.GoalItemMatch, error)
}

// AffinityResolver is consulted to translate a zero/blocked source
// affinity into the Decision Pipeline's BlockedSource flag.
type AffinityResolver interface {
	Affinity(ctx context.Context, userID, sourceID string) (float64, error)
}

// BudgetFlagsProvider supplies the current embedding/judge-disabled
// flags for a user (spec.md §4.8).
type BudgetFlagsProvider interface {
	Flags(ctx context.Context, userID string) (domain.BudgetFlags, error)
}

// DecisionRunner executes the Decision Pipeline node chain for one
// AgentState (spec.md §4.6).
type DecisionRunner interface {
	Run(ctx context.Context, s *decision.AgentState) error
}

// SourceNamer resolves a Source's display name for the AgentState.
type SourceNamer interface {
	SourceName(ctx context.Context, sourceID string) (string, error)
}

// Dispatcher implements match.MatchEmitter: on a MatchComputed event it
// rehydrates the full (Goal, Item, GoalItemMatch) triple the event's
// IDs refer to and runs it through the Decision Pipeline. The match
// engine only hands over IDs and a score (domain.MatchComputed) so it
// never needs to depend on the decision package.
type Dispatcher struct {
	items      ItemGetter
	goals      GoalGetter
	matches    MatchGetter
	affinity   AffinityResolver
	budget     BudgetFlagsProvider
	sources    SourceNamer
	pipeline   DecisionRunner
	thresholds decision.Thresholds
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(items ItemGetter, goals GoalGetter, matches MatchGetter, affinity AffinityResolver,
	budget BudgetFlagsProvider, sources SourceNamer, pipeline DecisionRunner, thresholds decision.Thresholds) *Dispatcher {
	return &Dispatcher{
		items: items, goals: goals, matches: matches, affinity: affinity,
		budget: budget, sources: sources, pipeline: pipeline, thresholds: thresholds,
	}
}

// EmitMatchComputed implements match.MatchEmitter. Failures are logged,
// not propagated. The match row stays written, but nothing in this
// repository re-dispatches a match whose dispatch failed here.
func (d *Dispatcher) EmitMatchComputed(ctx context.Context, event domain.MatchComputed) {
	if err := d.dispatch(ctx, decision.TriggerMatchComputed, event.GoalID, event.ItemID); err != nil {
		logger.Error("app: dispatch match computed failed", "goal_id", event.GoalID, "item_id", event.ItemID, "error", err.Error())
	}
}

// DispatchBucketTick runs the Decision Pipeline for a (goal, item) pair
// surfaced by a batch-window or digest tick (spec.md §4.6, §4.9).
func (d *Dispatcher) DispatchBucketTick(ctx context.Context, trigger decision.Trigger, goalID, itemID string) error {
	return d.dispatch(ctx, trigger, goalID, itemID)
}

func (d *Dispatcher) dispatch(ctx context.Context, trigger decision.Trigger, goalID, itemID string) error {
	goal, err := d.goals.GetByID(ctx, goalID)
	if err != nil {
		return err
	}
	item, err := d.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	match, err := d.matches.GetByGoalAndItem(ctx, goalID, itemID)
	if err != nil {
		return err
	}

	userID, err := d.goals.GoalOwner(ctx, goalID)
	if err != nil {
		return err
	}
	flags, err := d.budget.Flags(ctx, userID)
	if err != nil {
		return err
	}

	affinity, err := d.affinity.Affinity(ctx, userID, item.SourceID)
	if err != nil {
		return err
	}
	blocked := affinity <= 0

	sourceName := ""
	if d.sources != nil {
		sourceName, _ = d.sources.SourceName(ctx, item.SourceID)
	}

	state := decision.NewState(trigger, goal, item, match, flags, d.thresholds, blocked, sourceName)
	return d.pipeline.Run(ctx, state)
}
