// Package analytics implements spec.md §4.J: a periodic poll of the
// liquidation_attempts table that folds newly-seen rows into per-(chain,
// pair) buckets and posts the resulting FeedbackSignal back into the
// Adaptive Thresholds model. Grounded on internal/intake's
// ticker-plus-select poll loop (internal/intake/subgraph.go's Run/pollOnce
// split); the per-bucket aggregation itself has no direct teacher analogue,
// so it follows the accumulator style already used by
// internal/executor/failure_tracker.go.
package analytics

import (
	"context"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/adaptive"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/store"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// MinPollInterval is spec.md §5's floor on the analytics loop's period:
// "period = max(pollInterval, 1 s)".
const MinPollInterval = time.Second

// Loop owns one goroutine that polls Store and feeds Model.
type Loop struct {
	store    *store.Store
	model    *adaptive.Model
	chainIDs []uint64
	interval time.Duration
	log      *logger.Logger

	lastPoll map[uint64]time.Time
}

// New builds a Loop. pollInterval is clamped up to MinPollInterval.
func New(st *store.Store, model *adaptive.Model, chainIDs []uint64, pollInterval time.Duration, log *logger.Logger) *Loop {
	if pollInterval < MinPollInterval {
		pollInterval = MinPollInterval
	}
	lastPoll := make(map[uint64]time.Time, len(chainIDs))
	start := time.Now().Add(-pollInterval)
	for _, id := range chainIDs {
		lastPoll[id] = start
	}
	return &Loop{
		store:    st,
		model:    model,
		chainIDs: chainIDs,
		interval: pollInterval,
		log:      log.Named("analytics"),
		lastPoll: lastPoll,
	}
}

// Run polls every chain at l.interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.pollAll(ctx)
		}
	}
}

func (l *Loop) pollAll(ctx context.Context) {
	for _, chainID := range l.chainIDs {
		if err := l.pollOnce(ctx, chainID); err != nil {
			l.log.Warn("analytics poll failed", "chainId", chainID, "error", err)
		}
	}
}

func (l *Loop) pollOnce(ctx context.Context, chainID uint64) error {
	since := l.lastPoll[chainID]
	now := time.Now()

	rows, err := l.store.RecentAttempts(ctx, chainID, since)
	if err != nil {
		return err
	}
	l.lastPoll[chainID] = now

	buckets := bucketRows(chainID, rows)
	for key, b := range buckets {
		l.model.SetFeedback(key, b.signal())
	}
	return nil
}

// bucketRows groups rows by (chainId, debtSymbol, collateralSymbol),
// deriving the pair from each row's PlanDetails snapshot. Rows without plan
// details (pure throttle/gap-skip rejections with no scored candidate)
// don't identify a pair and are excluded from per-pair buckets, per
// spec.md §4.J's silence on that case.
func bucketRows(chainID uint64, rows []domain.AttemptRow) map[domain.PairKey]*bucket {
	buckets := make(map[domain.PairKey]*bucket)
	for _, row := range rows {
		plan := row.Details.Plan
		if plan == nil {
			continue
		}

		key := domain.PairKey{ChainID: chainID, DebtSymbol: plan.DebtSymbol, CollateralSymbol: plan.CollateralSymbol}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.add(row, *plan)
	}
	return buckets
}

// bucket accumulates one (chain, pair)'s worth of attempt rows between
// polls, matching the inputs spec.md §4.G's feedback overlay consumes.
type bucket struct {
	total           int
	sent            int
	success         int
	errors          int
	gapSkips        int
	opportunityCost float64
}

func (b *bucket) add(row domain.AttemptRow, plan domain.PlanDetails) {
	b.total++
	switch row.Status {
	case domain.StatusSent, domain.StatusSuccess:
		b.sent++
		if row.Status == domain.StatusSuccess {
			b.success++
		}
	case domain.StatusError:
		b.errors++
	case domain.StatusGapSkip:
		b.gapSkips++
		b.opportunityCost += plan.NetUSD
	case domain.StatusPolicySkip:
		b.opportunityCost += plan.NetUSD
	}
}

func (b *bucket) signal() adaptive.FeedbackSignal {
	if b.total == 0 {
		return adaptive.FeedbackSignal{}
	}
	hitRate := float64(b.sent) / float64(b.total)
	errorRate := 0.0
	if b.sent+b.errors > 0 {
		errorRate = float64(b.errors) / float64(b.sent+b.errors)
	}
	gapSkipRate := float64(b.gapSkips) / float64(b.total)

	return adaptive.FeedbackSignal{
		HitRate:            hitRate,
		OpportunityCostUSD: b.opportunityCost,
		GapSkipRate:        gapSkipRate,
		ErrorRate:          errorRate,
		ModelDrift:         modelDrift(hitRate, errorRate),
	}
}

// modelDrift gives applyFeedback's health-factor nudge a sign: positive
// when the model has plausibly been too conservative (near-zero errors but
// also near-zero hits), negative when errors are dominating successes.
func modelDrift(hitRate, errorRate float64) float64 {
	switch {
	case errorRate > 0.3:
		return -1
	case hitRate < 0.1 && errorRate < 0.05:
		return 1
	default:
		return 0
	}
}
