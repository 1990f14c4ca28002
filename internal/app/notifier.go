package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dida1024/sentrycore/internal/coalescer"
	"github.com/dida1024/sentrycore/internal/coalescer/mail"
	"github.com/dida1024/sentrycore/internal/coalescer/render"
	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/pkg/logger"
)

// UserEmailLookup resolves the address a rendered notification is sent
// to.
type UserEmailLookup interface {
	Email(ctx context.Context, userID string) (string, error)
}

// OutboxEnqueuer writes a rendered message to the send queue.
type OutboxEnqueuer interface {
	Enqueue(ctx context.Context, decisionID string, msg mail.Message, readyAt time.Time) error
}

// DecisionSink re-emits a demoted immediate proposal as a BATCH
// proposal so it rejoins the batch-window drain (its dedupe_key differs
// by bucket, so this is a fresh PENDING row, not a duplicate).
type DecisionSink interface {
	Emit(proposal domain.ActionProposal) error
}

// Notifier turns drained PushDecisionRecords and sealed immediate
// proposals into rendered outbox entries, the step between the
// Coalescer's three subsystems and the send-side OutboxWorker
// (spec.md §4.7 "Rendering").
type Notifier struct {
	items    ItemGetter
	goals    GoalGetter
	emails   UserEmailLookup
	outbox   OutboxEnqueuer
	sink     DecisionSink
	engine   *render.Engine
	fromAddr string
}

// NewNotifier builds a Notifier.
func NewNotifier(items ItemGetter, goals GoalGetter, emails UserEmailLookup, outbox OutboxEnqueuer,
	sink DecisionSink, renderEngine *render.Engine, fromAddr string) *Notifier {
	return &Notifier{items: items, goals: goals, emails: emails, outbox: outbox, sink: sink, engine: renderEngine, fromAddr: fromAddr}
}

// SendBatches renders and enqueues one email per drained batch
// (spec.md §4.7 "Batch").
func (n *Notifier) SendBatches(ctx context.Context, batches []coalescer.DrainedBatch) {
	n.sendDrained(ctx, "batch", batches)
}

// SendDigests renders and enqueues one email per drained digest
// (spec.md §4.7 "Digest").
func (n *Notifier) SendDigests(ctx context.Context, batches []coalescer.DrainedBatch) {
	n.sendDrained(ctx, "digest", batches)
}

func (n *Notifier) sendDrained(ctx context.Context, heading string, batches []coalescer.DrainedBatch) {
	for _, b := range batches {
		views, err := n.viewsForRecords(ctx, b.GoalID, b.Records)
		if err != nil {
			logger.Error("app: build item views failed", "goal_id", b.GoalID, "error", err.Error())
			continue
		}
		msg, err := n.renderMessage(ctx, heading, b.GoalID, views)
		if err != nil {
			logger.Error("app: render failed", "goal_id", b.GoalID, "error", err.Error())
			continue
		}
		if err := n.enqueueForRecords(ctx, msg, b.Records); err != nil {
			logger.Error("app: enqueue outbox failed", "goal_id", b.GoalID, "error", err.Error())
		}
	}
}

// SendImmediate renders the sealed "sent" set for one goal and re-emits
// the demoted overflow as BATCH proposals (spec.md §4.7, §8 property 9).
func (n *Notifier) SendImmediate(ctx context.Context, result coalescer.SealResult) {
	if len(result.Sent) > 0 {
		views, err := n.viewsForProposals(ctx, result.GoalID, result.Sent)
		if err != nil {
			logger.Error("app: build immediate views failed", "goal_id", result.GoalID, "error", err.Error())
		} else if msg, err := n.renderMessage(ctx, "immediate", result.GoalID, views); err != nil {
			logger.Error("app: render immediate failed", "goal_id", result.GoalID, "error", err.Error())
		} else {
			for _, p := range result.Sent {
				if err := n.outbox.Enqueue(ctx, p.DedupeKey, msg, time.Now()); err != nil {
					logger.Error("app: enqueue immediate outbox failed", "goal_id", result.GoalID, "error", err.Error())
				}
			}
		}
	}

	for _, p := range result.Demoted {
		if err := n.sink.Emit(p); err != nil {
			logger.Error("app: re-emit demoted proposal failed", "goal_id", p.GoalID, "item_id", p.ItemID, "error", err.Error())
		}
	}
}

func (n *Notifier) viewsForRecords(ctx context.Context, goalID string, records []*domain.PushDecisionRecord) ([]render.ItemView, error) {
	views := make([]render.ItemView, 0, len(records))
	for _, r := range records {
		item, err := n.items.GetByID(ctx, r.ItemID)
		if err != nil {
			return nil, fmt.Errorf("load item %s: %w", r.ItemID, err)
		}
		views = append(views, render.ItemView{ItemID: item.ID, GoalID: goalID, Channel: string(r.Channel), Title: item.Title, Snippet: snippetOf(item)})
	}
	return views, nil
}

func (n *Notifier) viewsForProposals(ctx context.Context, goalID string, proposals []domain.ActionProposal) ([]render.ItemView, error) {
	views := make([]render.ItemView, 0, len(proposals))
	for _, p := range proposals {
		item, err := n.items.GetByID(ctx, p.ItemID)
		if err != nil {
			return nil, fmt.Errorf("load item %s: %w", p.ItemID, err)
		}
		views = append(views, render.ItemView{ItemID: item.ID, GoalID: goalID, Channel: string(p.Channel), Title: item.Title, Snippet: snippetOf(item)})
	}
	return views, nil
}

func snippetOf(item *domain.Item) string {
	if item.Snippet == nil {
		return ""
	}
	return *item.Snippet
}

func (n *Notifier) renderMessage(ctx context.Context, heading, goalID string, rawViews []render.ItemView) (mail.Message, error) {
	goal, err := n.goals.GetByID(ctx, goalID)
	if err != nil {
		return mail.Message{}, fmt.Errorf("load goal %s: %w", goalID, err)
	}
	userID, err := n.goals.GoalOwner(ctx, goalID)
	if err != nil {
		return mail.Message{}, fmt.Errorf("goal owner %s: %w", goalID, err)
	}
	to, err := n.emails.Email(ctx, userID)
	if err != nil {
		return mail.Message{}, fmt.Errorf("user email %s: %w", userID, err)
	}

	channel := string(domain.ChannelEmail)
	if len(rawViews) > 0 {
		channel = rawViews[0].Channel
	}
	views := n.engine.BuildItemViews(channel, rawViews)
	templateCtx := map[string]interface{}{"heading": fmt.Sprintf("%s: %s", heading, goal.Name), "items": views}

	html, err := n.engine.Render("html_"+heading, render.DefaultHTMLTemplate, templateCtx)
	if err != nil {
		return mail.Message{}, err
	}
	text, err := n.engine.Render("text_"+heading, render.DefaultTextTemplate, templateCtx)
	if err != nil {
		return mail.Message{}, err
	}

	return mail.Message{
		From:     n.fromAddr,
		To:       to,
		Subject:  fmt.Sprintf("SentryCore: %s update for %s", heading, goal.Name),
		TextBody: text,
		HTMLBody: html,
	}, nil
}

func (n *Notifier) enqueueForRecords(ctx context.Context, msg mail.Message, records []*domain.PushDecisionRecord) error {
	for _, r := range records {
		if err := n.outbox.Enqueue(ctx, r.ID, msg, time.Now()); err != nil {
			return err
		}
	}
	return nil
}
