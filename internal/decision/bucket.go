package decision

import "github.com/dida1024/sentrycore/internal/domain"

// Bucket is Node 2: partitions the match score into a routing bucket
// by configured thresholds (spec.md §4.6). Boundaries are inclusive on
// the lower edge, matching the table in the spec exactly.
func Bucket(s *AgentState) {
	if s.halted {
		return
	}

	score := s.Match.MatchScore
	t := s.Thresholds

	switch {
	case score >= t.Immediate:
		s.Bucket = domain.DecisionImmediate
	case score >= t.Boundary:
		s.Bucket = domain.DecisionBoundary
	case score >= t.Batch:
		s.Bucket = domain.DecisionBatch
	default:
		s.Bucket = domain.DecisionIgnore
	}
}
