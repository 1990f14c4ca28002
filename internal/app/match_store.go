package app

import (
	"context"

	"github.com/dida1024/sentrycore/internal/domain"
)

// MatchUpserter is the subset of MatchRepo the adapter needs.
type MatchUpserter interface {
	Upsert(ctx context.Context, m *domain.GoalItemMatch) error
}

// MatchStore adapts three narrow repositories (match, source, goal)
// into match.MatchStore: the match package wants a single persistence
// port, but Upsert/SourceName/GoalOwner live on three different tables
// owned by three different repositories.
type MatchStore struct {
	matches MatchUpserter
	sources SourceNamer
	goals   GoalGetter
}

// NewMatchStore builds a MatchStore.
func NewMatchStore(matches MatchUpserter, sources SourceNamer, goals GoalGetter) *MatchStore {
	return &MatchStore{matches: matches, sources: sources, goals: goals}
}

// Upsert implements match.MatchStore.
func (s *MatchStore) Upsert(ctx context.Context, m *domain.GoalItemMatch) error {
	return s.matches.Upsert(ctx, m)
}

// SourceName implements match.MatchStore.
func (s *MatchStore) SourceName(ctx context.Context, sourceID string) (string, error) {
	return s.sources.SourceName(ctx, sourceID)
}

// GoalOwner implements match.MatchStore.
func (s *MatchStore) GoalOwner(ctx context.Context, goalID string) (string, error) {
	return s.goals.GoalOwner(ctx, goalID)
}
