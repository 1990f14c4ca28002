package app

import (
	"context"
	"time"

	"github.com/dida1024/sentrycore/internal/decision"
	"github.com/dida1024/sentrycore/internal/domain"
)

// ImmediateAdder buffers an IMMEDIATE proposal into its goal's current
// 5-minute bucket.
type ImmediateAdder interface {
	Add(ctx context.Context, proposal domain.ActionProposal, now time.Time) error
}

// RecordSink persists the audit/dedupe PushDecisionRecord for a
// proposal, independent of bucket.
type RecordSink interface {
	Emit(proposal domain.ActionProposal) error
}

// ProposalSink implements decision.ProposalSink: every proposal is
// persisted as a PENDING PushDecisionRecord (audit trail and dedupe
// key), and IMMEDIATE-bucket proposals are additionally buffered so the
// immediate flush tick can batch them into one email per 5-minute
// window (spec.md §4.7). BATCH and DIGEST proposals need no extra
// buffering: their drain ticks query PENDING records directly.
type ProposalSink struct {
	records   RecordSink
	immediate ImmediateAdder
}

// NewProposalSink builds a ProposalSink.
func NewProposalSink(records RecordSink, immediate ImmediateAdder) *ProposalSink {
	return &ProposalSink{records: records, immediate: immediate}
}

var _ decision.ProposalSink = (*ProposalSink)(nil)

// Emit implements decision.ProposalSink.
func (s *ProposalSink) Emit(proposal domain.ActionProposal) error {
	if err := s.records.Emit(proposal); err != nil {
		return err
	}
	if proposal.Decision == domain.DecisionImmediate {
		return s.immediate.Add(context.Background(), proposal, time.Now())
	}
	return nil
}
