package analytics

import (
	"testing"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/adaptive"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

func TestNewClampsIntervalToMinimum(t *testing.T) {
	l := New(nil, adaptive.New("", logger.New("test")), []uint64{1}, 10*time.Millisecond, logger.New("test"))
	if l.interval != MinPollInterval {
		t.Fatalf("expected interval to clamp to %s, got %s", MinPollInterval, l.interval)
	}
}

func planRow(status domain.AttemptStatus, netUSD float64) domain.AttemptRow {
	return domain.AttemptRow{
		ChainID:  1,
		Borrower: "0xabc",
		Status:   status,
		Details: domain.AttemptDetails{
			Kind: "plan",
			Plan: &domain.PlanDetails{
				DebtSymbol:       "USDC",
				CollateralSymbol: "WETH",
				NetUSD:           netUSD,
			},
		},
	}
}

func TestBucketRowsGroupsByPair(t *testing.T) {
	rows := []domain.AttemptRow{
		planRow(domain.StatusSuccess, 100),
		planRow(domain.StatusSent, 50),
		planRow(domain.StatusError, 0),
		planRow(domain.StatusGapSkip, 75),
		{ChainID: 1, Borrower: "0xdef", Status: domain.StatusThrottled},
	}

	buckets := bucketRows(1, rows)
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket (throttled row has no plan), got %d", len(buckets))
	}

	key := domain.PairKey{ChainID: 1, DebtSymbol: "USDC", CollateralSymbol: "WETH"}
	b, ok := buckets[key]
	if !ok {
		t.Fatalf("expected a bucket for %+v", key)
	}
	if b.total != 4 {
		t.Fatalf("expected 4 plan-bearing rows, got %d", b.total)
	}
	if b.sent != 2 {
		t.Fatalf("expected 2 sent/success rows, got %d", b.sent)
	}
	if b.gapSkips != 1 {
		t.Fatalf("expected 1 gap skip, got %d", b.gapSkips)
	}
}

func TestBucketSignalComputesRates(t *testing.T) {
	b := &bucket{}
	b.add(planRow(domain.StatusSuccess, 0), domain.PlanDetails{})
	b.add(planRow(domain.StatusSuccess, 0), domain.PlanDetails{})
	b.add(planRow(domain.StatusError, 0), domain.PlanDetails{})
	b.add(planRow(domain.StatusGapSkip, 40), domain.PlanDetails{NetUSD: 40})

	sig := b.signal()
	if sig.HitRate != 0.5 {
		t.Fatalf("expected hit rate 0.5, got %f", sig.HitRate)
	}
	if sig.GapSkipRate != 0.25 {
		t.Fatalf("expected gap skip rate 0.25, got %f", sig.GapSkipRate)
	}
	if sig.OpportunityCostUSD != 40 {
		t.Fatalf("expected opportunity cost 40, got %f", sig.OpportunityCostUSD)
	}
}

func TestBucketSignalEmptyReturnsZeroValue(t *testing.T) {
	b := &bucket{}
	sig := b.signal()
	if sig != (adaptive.FeedbackSignal{}) {
		t.Fatalf("expected zero-value signal, got %+v", sig)
	}
}
