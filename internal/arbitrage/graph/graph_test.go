package graph

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// linearQuoter is a fake Quoter with a constant per-venue price and an
// optional slippage factor applied per unit of amountIn, letting tests
// control the shape of the sampled depth curve without a live node.
type linearQuoter struct {
	priceNumerator, priceDenominator int64
	slippeagePer1kBps                int64 // bps of slippage added per 1000 units of base traded
}

func (q *linearQuoter) QuoteExactInputSingle(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(amountIn, big.NewInt(q.priceNumerator))
	out.Div(out, big.NewInt(q.priceDenominator))

	if q.slippeagePer1kBps != 0 {
		units := new(big.Int).Div(amountIn, big.NewInt(1000))
		slip := new(big.Int).Mul(out, big.NewInt(q.slippeagePer1kBps*units.Int64()))
		slip.Div(slip, big.NewInt(10_000))
		out.Sub(out, slip)
	}
	return out, nil
}

func testPair() domain.ResolvedPair {
	return domain.ResolvedPair{
		PairConfig: domain.PairConfig{
			ChainID:   1,
			PairID:    "WETH/USDC",
			Base:      domain.TokenInfo{Address: "0xa", Decimals: 18},
			Quote:     domain.TokenInfo{Address: "0xb", Decimals: 6},
			TradeSize: 1.0,
		},
		Venues: []domain.ResolvedVenue{
			{VenueConfig: domain.VenueConfig{Name: "v1"}, PoolAddress: "0xpool1"},
		},
	}
}

func TestSamplePopulatesAllTiersWithZeroSlippageWhenPriceConstant(t *testing.T) {
	q := &linearQuoter{priceNumerator: 3000, priceDenominator: 1}
	g := New(q, time.Second, logger.New("test"))

	pair := testPair()
	if err := g.Sample(context.Background(), pair, pair.Venues[0]); err != nil {
		t.Fatalf("sample: %v", err)
	}

	primary, fresh := g.Primary(pair.PairID, pair.Venues[0].Name)
	if !fresh {
		t.Fatalf("expected freshly sampled point to be fresh")
	}
	if primary.SlippageBps != 0 {
		t.Fatalf("expected 0 slippage at constant price, got %d", primary.SlippageBps)
	}
}

func TestSuggestPicksLargestTierWithinSlippageBudget(t *testing.T) {
	q := &linearQuoter{priceNumerator: 3000, priceDenominator: 1, slippeagePer1kBps: 1}
	g := New(q, time.Second, logger.New("test"))

	pair := testPair()
	pair.TradeSize = 10000 // large enough that higher tiers show meaningful slippage
	pair.Base.Decimals = 0 // whole-token units keep the fake's per-1000-unit slippage in range
	if err := g.Sample(context.Background(), pair, pair.Venues[0]); err != nil {
		t.Fatalf("sample: %v", err)
	}

	// Sampled slippage vs the 1x tier: 0.25x=8, 0.5x=5, 1x=0, 1.5x=-5, 2x=-10 bps.
	tier := g.Suggest(pair.PairID, pair.Venues[0].Name, 7)
	if tier != 1.5 {
		t.Fatalf("expected largest tier within budget (1.5x), got %v", tier)
	}
}

func TestSuggestDefaultsToPrimaryTierForUnsampledPair(t *testing.T) {
	g := New(&linearQuoter{priceNumerator: 1, priceDenominator: 1}, time.Second, logger.New("test"))
	tier := g.Suggest("unknown-pair", "unknown-venue", 10)
	if tier != domain.PrimaryTier {
		t.Fatalf("expected PrimaryTier default for unsampled pair, got %v", tier)
	}
}
