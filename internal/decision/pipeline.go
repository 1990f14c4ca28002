package decision

import (
	"context"
	"fmt"
)

// Pipeline runs the fixed node chain: RuleGate → Bucket → BoundaryJudge
// → PushWorthiness → EmitActions (spec.md §4.6, §9 "Decision pipeline
// as a chain"). It is a linear sequence, not a DAG: early-exit via
// AgentState.halted simplifies reasoning and testing.
type Pipeline struct {
	judge Judge
	sink  ProposalSink
}

// NewPipeline builds a Pipeline. judge may be nil, in which case the
// BoundaryJudge and PushWorthiness nodes always fall back deterministically.
func NewPipeline(judge Judge, sink ProposalSink) *Pipeline {
	return &Pipeline{judge: judge, sink: sink}
}

// Run executes the chain against one AgentState. Any node panic is
// recovered here and reported as a fatal run error (spec.md §4.6
// "Pipeline failure semantics": an unhandled exception aborts the
// single run and does not block other items).
func (p *Pipeline) Run(ctx context.Context, s *AgentState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decision: pipeline run aborted: %v", r)
		}
	}()

	RuleGate(s)
	Bucket(s)
	BoundaryJudge(p.judge)(ctx, s)
	PushWorthiness(p.judge)(ctx, s)

	return EmitActions(p.sink)(s)
}
