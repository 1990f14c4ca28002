package decision

import "github.com/dida1024/sentrycore/internal/domain"

// RuleGate is Node 1: vetoes flow before any scoring decision
// (spec.md §4.6).
func RuleGate(s *AgentState) {
	if s.BlockedSource {
		s.BlockReasons = append(s.BlockReasons, "BLOCKED_SOURCE")
		s.Bucket = domain.DecisionIgnore
		s.halt()
		return
	}

	if s.Match.MatchScore == 0 {
		s.BlockReasons = append(s.BlockReasons, vetoReason(s.Match.Features))
		s.Bucket = domain.DecisionIgnore
		s.halt()
		return
	}

	if s.BudgetFlags.JudgeDisabled {
		// Marked, not vetoed: downstream nodes fall back to deterministic
		// rules instead of invoking the LLM.
		s.BlockReasons = append(s.BlockReasons, "LLM_OFF")
	}
}

// vetoReason picks the most specific reason a zero-score match was
// produced, per spec.md §4.6 ("choose by features").
func vetoReason(f domain.MatchFeatures) string {
	if f.NegativeHit {
		return "NEGATIVE_TERM"
	}
	if !f.MustHit {
		return "STRICT_NO_HIT"
	}
	return "BLOCKED_SOURCE"
}
