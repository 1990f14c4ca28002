// Package match implements the Match Engine (C6, spec.md §4.5): for a
// newly embedded Item, scores it against every ACTIVE Goal visible to
// its Source and upserts one GoalItemMatch row per Goal.
package match

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/dida1024/sentrycore/internal/domain"
)

// freshnessTau is τ in exp(-Δhours/τ) (spec.md §4.5).
const freshnessTau = 24.0

// Scoring weights; kept configurable per spec.md §8 Open Question (b).
type Weights struct {
	CosSim     float64
	Freshness  float64
	Priority   float64
	MustHit    float64
}

// DefaultWeights mirrors the source's apparent intent (spec.md §4.5).
var DefaultWeights = Weights{CosSim: 0.55, Freshness: 0.15, Priority: 0.15, MustHit: 0.15}

// GoalVisibility resolves the set of ACTIVE Goals visible to a Source:
// the owner's goals plus any subscriber's goals (spec.md §4.5).
type GoalVisibility interface {
	VisibleGoals(ctx context.Context, sourceID string) ([]*domain.Goal, error)
	PriorityTerms(ctx context.Context, goalID string) ([]domain.GoalPriorityTerm, error)
}

// SourceAffinityResolver computes the user-specific multiplier for a
// (user, source) pair. The postgres implementation returns 0 for a
// BlockedSource row, else the stored source affinity weight, else 1.0;
// ItemFeedback dislikes are not consulted.
type SourceAffinityResolver interface {
	Affinity(ctx context.Context, userID, sourceID string) (float64, error)
}

// MatchStore persists the upserted GoalItemMatch and names the Source
// for reasons_json.
type MatchStore interface {
	Upsert(ctx context.Context, m *domain.GoalItemMatch) error
	SourceName(ctx context.Context, sourceID string) (string, error)
	GoalOwner(ctx context.Context, goalID string) (userID string, err error)
}

// MatchEmitter is notified of a successfully computed match so the
// decision pipeline can act on it (spec.md §4.5 "Emission").
type MatchEmitter interface {
	EmitMatchComputed(ctx context.Context, event domain.MatchComputed)
}

// Engine is the Match Engine (C6).
type Engine struct {
	visibility GoalVisibility
	affinity   SourceAffinityResolver
	store      MatchStore
	emitter    MatchEmitter
	weights    Weights
	now        func() time.Time
}

// NewEngine builds an Engine. weights defaults to DefaultWeights if the
// zero value is passed.
func NewEngine(visibility GoalVisibility, affinity SourceAffinityResolver, store MatchStore, emitter MatchEmitter, weights Weights) *Engine {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Engine{visibility: visibility, affinity: affinity, store: store, emitter: emitter, weights: weights, now: time.Now}
}

// Compute scores item against every ACTIVE Goal visible to its Source
// and upserts one GoalItemMatch per Goal (spec.md §4.5).
func (e *Engine) Compute(ctx context.Context, item *domain.Item) error {
	if item.Embedding == nil {
		return fmt.Errorf("match: item %s has no embedding", item.ID)
	}

	goals, err := e.visibility.VisibleGoals(ctx, item.SourceID)
	if err != nil {
		return fmt.Errorf("match: resolve visible goals for source %s: %w", item.SourceID, err)
	}

	sourceName, err := e.store.SourceName(ctx, item.SourceID)
	if err != nil {
		return fmt.Errorf("match: resolve source name for %s: %w", item.SourceID, err)
	}

	for _, goal := range goals {
		if goal.Status != domain.GoalActive {
			continue
		}
		if err := e.scoreOne(ctx, item, goal, sourceName); err != nil {
			return fmt.Errorf("match: score goal %s against item %s: %w", goal.ID, item.ID, err)
		}
	}
	return nil
}

func (e *Engine) scoreOne(ctx context.Context, item *domain.Item, goal *domain.Goal, sourceName string) error {
	terms, err := e.visibility.PriorityTerms(ctx, goal.ID)
	if err != nil {
		return err
	}

	userID, err := e.store.GoalOwner(ctx, goal.ID)
	if err != nil {
		return err
	}

	affinity := 1.0
	if e.affinity != nil {
		affinity, err = e.affinity.Affinity(ctx, userID, item.SourceID)
		if err != nil {
			return err
		}
	}

	cosSim := rescaledCosine(item.Embedding, goal.DescriptorEmbedding)
	freshness := freshnessDecay(item.ItemTime(), e.now())
	mustTerms, priorityTerms, negativeTerms := matchTerms(item, terms)

	features := domain.MatchFeatures{
		CosSim:           cosSim,
		MustHit:          len(mustTerms) == countMustTerms(terms),
		PriorityHitCount: len(priorityTerms),
		NegativeHit:      len(negativeTerms) > 0,
		Freshness:        freshness,
		SourceAffinity:   affinity,
	}

	score := clamp01(
		e.weights.CosSim*cosSim +
			e.weights.Freshness*freshness +
			e.weights.Priority*math.Min(float64(features.PriorityHitCount), 3)/3 +
			e.weights.MustHit*boolToFloat(features.MustHit),
	) * affinity

	// Vetoes (spec.md §4.5): negative term hit, or HARD mode with an
	// absent MUST term. A 0-score row is still upserted for auditability.
	if features.NegativeHit {
		score = 0
	}
	if goal.PriorityMode == domain.PriorityModeHard && !features.MustHit {
		score = 0
	}

	contributions := map[string]float64{
		"cos_sim":    e.weights.CosSim * cosSim,
		"freshness":  e.weights.Freshness * freshness,
		"priority":   e.weights.Priority * math.Min(float64(features.PriorityHitCount), 3) / 3,
		"must_hit":   e.weights.MustHit * boolToFloat(features.MustHit),
		"affinity":   affinity,
	}

	m := &domain.GoalItemMatch{
		GoalID:     goal.ID,
		ItemID:     item.ID,
		MatchScore: score,
		Features:   features,
		Reasons: domain.MatchReasons{
			MatchedMustTerms:     mustTerms,
			MatchedPriorityTerms: priorityTerms,
			MatchedNegativeTerms: negativeTerms,
			Contributions:        contributions,
			SourceName:           sourceName,
		},
		TopicKey:   item.TopicKey,
		ItemTime:   item.ItemTime(),
		ComputedAt: e.now(),
	}

	if err := e.store.Upsert(ctx, m); err != nil {
		return err
	}

	if e.emitter != nil {
		e.emitter.EmitMatchComputed(ctx, domain.MatchComputed{GoalID: goal.ID, ItemID: item.ID, Score: score})
	}
	return nil
}

// rescaledCosine returns (cos+1)/2, clamped to [0,1]. A nil Goal
// descriptor (not yet embedded) yields 0.
func rescaledCosine(item, descriptor *pgvector.Vector) float64 {
	if item == nil || descriptor == nil {
		return 0
	}
	cos := cosineSimilarity(item.Slice(), descriptor.Slice())
	return clamp01((cos + 1) / 2)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// freshnessDecay is exp(-Δhours/τ), Δ = age of the item relative to now
// (spec.md §4.5). Future-dated items (clock skew) are treated as
// maximally fresh.
func freshnessDecay(itemTime, now time.Time) float64 {
	deltaHours := now.Sub(itemTime).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}
	return math.Exp(-deltaHours / freshnessTau)
}

func matchTerms(item *domain.Item, terms []domain.GoalPriorityTerm) (must, priority, negative []string) {
	haystack := strings.ToLower(item.Title)
	if item.Snippet != nil {
		haystack += " " + strings.ToLower(*item.Snippet)
	}
	if item.Summary != nil {
		haystack += " " + strings.ToLower(*item.Summary)
	}
	for _, t := range terms {
		if strings.Contains(haystack, strings.ToLower(t.Term)) {
			switch t.TermType {
			case domain.TermMust:
				must = append(must, t.Term)
			case domain.TermPriority:
				priority = append(priority, t.Term)
			case domain.TermNegative:
				negative = append(negative, t.Term)
			}
		}
	}
	return
}

// countMustTerms counts how many MUST terms a Goal defines. must_hit is
// 1 only when every one of them was matched (spec.md §4.5); a Goal with
// no MUST terms trivially satisfies must_hit (0 == 0).
func countMustTerms(terms []domain.GoalPriorityTerm) int {
	n := 0
	for _, t := range terms {
		if t.TermType == domain.TermMust {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
