package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/domain"
)

// immediateBucketWindow mirrors coalescer.ImmediateBucketWindow (spec.md
// §4.7 "Bucket boundary"); duplicated here rather than imported to keep
// the decision pipeline independent of the coalescer package.
const immediateBucketWindow = 5 * time.Minute

// ProposalSink receives the ActionProposals emitted by the EmitActions
// node, and is where a PENDING PushDecisionRecord is appended.
type ProposalSink interface {
	Emit(proposal domain.ActionProposal) error
}

// EmitActions is Node 5: for a surviving (non-IGNORE) bucket, emits an
// ActionProposal onto the Coalescer input queue and appends a
// PushDecisionRecord with status=PENDING (spec.md §4.6).
func EmitActions(sink ProposalSink) func(s *AgentState) error {
	return func(s *AgentState) error {
		if s.halted {
			return nil
		}

		reasons := make([]domain.ReasonEvidence, 0, len(s.BlockReasons)+1)
		for _, r := range s.BlockReasons {
			reasons = append(reasons, domain.ReasonEvidence{Node: "pipeline", Reason: r})
		}
		if s.FallbackReason != "" {
			reasons = append(reasons, domain.ReasonEvidence{Node: "boundary_or_push", Reason: s.FallbackReason})
		}

		proposal := domain.ActionProposal{
			GoalID:    s.Goal.ID,
			ItemID:    s.Item.ID,
			TopicKey:  s.Match.TopicKey,
			Decision:  s.Bucket,
			Channel:   domain.ChannelEmail,
			Reasons:   reasons,
			Score:     s.Match.MatchScore,
			ItemTime:  s.Match.ItemTime,
			DecidedAt: s.Match.ComputedAt,
			DedupeKey: DedupeKey(s.Goal.ID, s.Match.TopicKey, s.Bucket, CoalesceBucket(s.Bucket, s.Match.ComputedAt)),
		}
		s.Proposals = append(s.Proposals, proposal)

		if s.Bucket == domain.DecisionIgnore {
			// Kept on s.Proposals only: IGNORE proposals are not passed to
			// the sink, so no PushDecisionRecord is written for them.
			return nil
		}

		return sink.Emit(proposal)
	}
}

// DedupeKey computes the at-most-once key for a (goal, topic_key,
// decision, coalesce_bucket) quadruple (spec.md §3 Glossary, §4.7
// "Dedupe"): sha256 hex of goal_id|item_topic_key|decision|coalesce_bucket.
func DedupeKey(goalID, topicKey string, bucket domain.DecisionBucket, coalesceBucket string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", goalID, topicKey, bucket, coalesceBucket)))
	return hex.EncodeToString(h[:])
}

// CoalesceBucket computes the coalesce_bucket component of DedupeKey for
// a decided bucket. IMMEDIATE proposals bucket by the same 5-minute
// window the immediate buffer seals on (spec.md §4.7 "Bucket boundary"),
// so two IMMEDIATE proposals for the same (goal, topic) in different
// windows get distinct dedupe keys. Other buckets (BATCH, DIGEST,
// BOUNDARY, IGNORE) resolve on their own schedule rather than a fixed
// window, so they bucket by UTC calendar day.
func CoalesceBucket(bucket domain.DecisionBucket, decidedAt time.Time) string {
	if bucket == domain.DecisionImmediate {
		return fmt.Sprintf("%d", decidedAt.UTC().Unix()/int64(immediateBucketWindow.Seconds()))
	}
	return decidedAt.UTC().Format("2006-01-02")
}
