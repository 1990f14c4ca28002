package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// BoundaryJudgeTimeout bounds the LLM call per spec.md §5.
const BoundaryJudgeTimeout = 20 * time.Second

// BoundaryJudge is Node 3: only runs when Bucket == BOUNDARY. On
// promote=true the item is upgraded to IMMEDIATE, else downgraded to
// BATCH. On LLM failure or judge_disabled, falls back to the
// deterministic rule (spec.md §4.6, §8 property 10).
func BoundaryJudge(judge Judge) func(ctx context.Context, s *AgentState) {
	return func(ctx context.Context, s *AgentState) {
		if s.halted || s.Bucket != domain.DecisionBoundary {
			return
		}

		if s.BudgetFlags.JudgeDisabled || judge == nil {
			applyFallback(s, "judge_disabled")
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, BoundaryJudgeTimeout)
		defer cancel()

		out, err := judge.JudgeBoundary(callCtx, boundaryPrompt(s))
		if err != nil {
			applyFallback(s, fmt.Sprintf("llm_error: %v", err))
			return
		}

		s.LLMUsed = true
		if out.Promote {
			s.Bucket = domain.DecisionImmediate
		} else {
			s.Bucket = domain.DecisionBatch
		}
		s.BlockReasons = append(s.BlockReasons, "llm_boundary")
	}
}

// applyFallback implements the deterministic rule: promote iff
// must_hit ∧ priority_hit_count ≥ 1 (spec.md §4.6, §8 property 10).
func applyFallback(s *AgentState, reason string) {
	s.LLMUsed = false
	s.FallbackReason = reason

	promote := s.Match.Features.MustHit && s.Match.Features.PriorityHitCount >= 1
	if promote {
		s.Bucket = domain.DecisionImmediate
	} else {
		s.Bucket = domain.DecisionBatch
	}
}

func boundaryPrompt(s *AgentState) string {
	return fmt.Sprintf(
		"Goal: %s\nDescription: %s\nItem title: %s\nMatch score: %.3f\nMust-hit: %v\nPriority hits: %d\n\n"+
			"Decide whether this item is notable enough to push immediately rather than wait for the next batch window. "+
			"Respond as JSON: {\"promote\": bool, \"confidence\": number 0-1, \"rationale\": string}.",
		s.Goal.Name, s.Goal.Description, s.Item.Title, s.Match.MatchScore, s.Match.Features.MustHit, s.Match.Features.PriorityHitCount,
	)
}
