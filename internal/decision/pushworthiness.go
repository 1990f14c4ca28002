package decision

import (
	"context"
	"fmt"

	"github.com/dida1024/sentrycore/internal/domain"
)

// PushWorthiness is Node 4: applied to IMMEDIATE/BATCH/DIGEST
// survivors, distinguishes "relevant but routine" from "relevant and
// notable". push=false downgrades one bucket level; IGNORE is a
// terminal downgrade (spec.md §4.6).
func PushWorthiness(judge Judge) func(ctx context.Context, s *AgentState) {
	return func(ctx context.Context, s *AgentState) {
		if s.halted || s.Bucket == domain.DecisionIgnore {
			return
		}

		if s.BudgetFlags.JudgeDisabled || judge == nil {
			// Fallback when disabled: keep bucket (spec.md §4.6 Node 4).
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, BoundaryJudgeTimeout)
		defer cancel()

		out, err := judge.JudgePushWorthiness(callCtx, pushWorthinessPrompt(s))
		if err != nil {
			s.FallbackReason = fmt.Sprintf("llm_error: %v", err)
			return
		}

		s.LLMUsed = true
		if !out.Push {
			s.Bucket = downgrade(s.Bucket)
			s.BlockReasons = append(s.BlockReasons, "push_worthiness_downgrade")
		}
	}
}

func downgrade(b domain.DecisionBucket) domain.DecisionBucket {
	switch b {
	case domain.DecisionImmediate:
		return domain.DecisionBatch
	case domain.DecisionBatch:
		return domain.DecisionDigest
	case domain.DecisionDigest:
		return domain.DecisionIgnore
	default:
		return b
	}
}

func pushWorthinessPrompt(s *AgentState) string {
	return fmt.Sprintf(
		"Goal: %s\nItem title: %s\nCurrent bucket: %s\n\n"+
			"Decide whether this content itself is notable enough to warrant a user-facing push, as opposed to routine. "+
			"Respond as JSON: {\"push\": bool, \"reasons\": [string]}.",
		s.Goal.Name, s.Item.Title, s.Bucket,
	)
}
