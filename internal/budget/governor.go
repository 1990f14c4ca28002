// Package budget implements the Budget Governor (C9, spec.md §4.8):
// per-user, per-date counters that gate embedding and judge spend.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dida1024/sentrycore/internal/domain"
)

// CutoffKind distinguishes the two severities a reserve() call can hit.
type CutoffKind int

const (
	// CutoffNone means the reservation is fully within budget.
	CutoffNone CutoffKind = iota
	// CutoffSoft warns but still allows downstream to proceed for
	// high-priority paths (currently only immediate sends).
	CutoffSoft
	// CutoffHard rejects all of that reservation kind.
	CutoffHard
)

// SoftCutoffFactor is the fraction of daily_cap at which the soft
// cutoff engages (spec.md §4.8: "projected usd_est < daily_cap ×
// soft_factor").
const SoftCutoffFactor = 0.8

// FlagsCacheTTL bounds how long a process may cache a user's budget
// flags (spec.md §4.8, §9 "Global state").
const FlagsCacheTTL = 10 * time.Second

// CounterStore persists per-user per-date counters idempotently.
type CounterStore interface {
	// ReserveIfUnderCap atomically checks and increments a user's daily
	// counter in a single conditional update: the increment is only
	// applied if the resulting usd_est would stay under cap. allowed
	// reports whether the increment was applied; snapshot reflects the
	// counter's value after the call either way. Idempotency is keyed
	// by idempotencyKey so retries do not double-count.
	ReserveIfUnderCap(ctx context.Context, userID string, date string, kind domain.ReserveKind, tokens int64, usd float64, cap float64, idempotencyKey string) (allowed bool, snapshot domain.BudgetDaily, err error)
	// Snapshot returns (creating if absent) the counter row for
	// (userID, date), used by rollover and read-only inspection.
	Snapshot(ctx context.Context, userID string, date string) (domain.BudgetDaily, error)
	// DailyCap returns the effective daily cap in USD for a user,
	// honoring per-user overrides.
	DailyCap(ctx context.Context, userID string) (float64, error)
}

// Governor is the Budget Governor (C9).
type Governor struct {
	store CounterStore
	now   func() time.Time

	// paceLimiters rate-limits reserve() calls per user to smooth bursts
	// of cheap requests rather than only gating on the daily total.
	paceMu       sync.Mutex
	paceLimiters map[string]*rate.Limiter
	paceRPS      rate.Limit

	flagsMu    sync.Mutex
	flagsCache map[string]cachedFlags
}

type cachedFlags struct {
	flags     domain.BudgetFlags
	expiresAt time.Time
}

// NewGovernor builds a Governor. paceRPS bounds reserve() calls per
// user per second (0 disables pacing).
func NewGovernor(store CounterStore, paceRPS float64) *Governor {
	return &Governor{
		store:        store,
		now:          time.Now,
		paceLimiters: make(map[string]*rate.Limiter),
		paceRPS:      rate.Limit(paceRPS),
		flagsCache:   make(map[string]cachedFlags),
	}
}

func (g *Governor) limiterFor(userID string) *rate.Limiter {
	if g.paceRPS <= 0 {
		return nil
	}
	g.paceMu.Lock()
	defer g.paceMu.Unlock()
	l, ok := g.paceLimiters[userID]
	if !ok {
		l = rate.NewLimiter(g.paceRPS, 1)
		g.paceLimiters[userID] = l
	}
	return l
}

// Reserve implements the conditional-update reservation described in
// spec.md §4.8: the cap check and the increment happen as one atomic
// operation in the store, so concurrent callers can never together push
// usd_est past daily_cap. allowed=false means the hard cutoff rejected
// the reservation; nothing is recorded in that case.
func (g *Governor) Reserve(ctx context.Context, userID string, kind domain.ReserveKind, tokensEst int64, usdEst float64) (bool, error) {
	return g.reserveKeyed(ctx, userID, kind, tokensEst, usdEst, "")
}

// ReserveIdempotent is Reserve with an explicit idempotency key so
// retried requests never double-count (spec.md §4.8).
func (g *Governor) ReserveIdempotent(ctx context.Context, userID string, kind domain.ReserveKind, tokensEst int64, usdEst float64, idempotencyKey string) (bool, error) {
	return g.reserveKeyed(ctx, userID, kind, tokensEst, usdEst, idempotencyKey)
}

func (g *Governor) reserveKeyed(ctx context.Context, userID string, kind domain.ReserveKind, tokensEst int64, usdEst float64, idempotencyKey string) (bool, error) {
	if limiter := g.limiterFor(userID); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("budget: pacing wait for user %s: %w", userID, err)
		}
	}

	date := g.now().UTC().Format("2006-01-02")
	dailyCap, err := g.store.DailyCap(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("budget: resolve daily cap for user %s: %w", userID, err)
	}

	allowed, _, err := g.store.ReserveIfUnderCap(ctx, userID, date, kind, tokensEst, usdEst, dailyCap, idempotencyKey)
	if err != nil {
		return false, fmt.Errorf("budget: reserve for user %s: %w", userID, err)
	}

	if allowed {
		g.invalidateFlags(userID)
	}
	return allowed, nil
}

// Flags returns a user's current cutoff flags, cached per process for
// up to FlagsCacheTTL (spec.md §4.8, §9).
func (g *Governor) Flags(ctx context.Context, userID string) (domain.BudgetFlags, error) {
	g.flagsMu.Lock()
	if cached, ok := g.flagsCache[userID]; ok && g.now().Before(cached.expiresAt) {
		g.flagsMu.Unlock()
		return cached.flags, nil
	}
	g.flagsMu.Unlock()

	date := g.now().UTC().Format("2006-01-02")
	dailyCap, err := g.store.DailyCap(ctx, userID)
	if err != nil {
		return domain.BudgetFlags{}, fmt.Errorf("budget: resolve daily cap for user %s: %w", userID, err)
	}
	snapshot, err := g.store.Snapshot(ctx, userID, date)
	if err != nil {
		return domain.BudgetFlags{}, fmt.Errorf("budget: read snapshot for user %s: %w", userID, err)
	}

	flags := domain.BudgetFlags{
		EmbeddingDisabled: cutoffKind(snapshot.USDEst, dailyCap) == CutoffHard,
		JudgeDisabled:     cutoffKind(snapshot.USDEst, dailyCap) != CutoffNone,
	}

	g.flagsMu.Lock()
	g.flagsCache[userID] = cachedFlags{flags: flags, expiresAt: g.now().Add(FlagsCacheTTL)}
	g.flagsMu.Unlock()

	return flags, nil
}

func (g *Governor) invalidateFlags(userID string) {
	g.flagsMu.Lock()
	delete(g.flagsCache, userID)
	g.flagsMu.Unlock()
}

func cutoffKind(spentUSD, dailyCap float64) CutoffKind {
	if dailyCap <= 0 {
		return CutoffNone
	}
	if spentUSD >= dailyCap {
		return CutoffHard
	}
	if spentUSD >= dailyCap*SoftCutoffFactor {
		return CutoffSoft
	}
	return CutoffNone
}

// Rollover snapshots the previous user-local day idempotently: the
// Snapshot call on CounterStore already performs an insert-if-absent,
// so Rollover is a thin wrapper. No tick job or other code in this
// repository calls it.
func (g *Governor) Rollover(ctx context.Context, userID string, previousDate string) error {
	_, err := g.store.Snapshot(ctx, userID, previousDate)
	if err != nil {
		return fmt.Errorf("budget: rollover snapshot for user %s date %s: %w", userID, previousDate, err)
	}
	return nil
}
