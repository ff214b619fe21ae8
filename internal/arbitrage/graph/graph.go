// Package graph implements spec.md §4.K's Price Graph: periodic depth
// sampling across the standard {0.25, 0.5, 1, 1.5, 2}x trade-size tiers for
// every (pair, venue), from which the single-hop solver reads slippage
// estimates and freshness. Grounded on internal/analytics/loop.go's
// ticker-driven poll shape.
package graph

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// Quoter is the subset of quoter.Mesh the graph depends on.
type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)
}

// DefaultQuoteInterval is used when a FabricConfig leaves quoteIntervalMs
// unset.
const DefaultQuoteInterval = 2 * time.Second

// Graph owns the sampled DepthPoint curves for every configured pair/venue.
type Graph struct {
	quoter   Quoter
	interval time.Duration
	log      *logger.Logger

	mu     sync.RWMutex
	points map[string]map[domain.DepthTier]domain.DepthPoint
}

// New builds a Graph. A non-positive quoteInterval is replaced by
// DefaultQuoteInterval.
func New(quoter Quoter, quoteInterval time.Duration, log *logger.Logger) *Graph {
	if quoteInterval <= 0 {
		quoteInterval = DefaultQuoteInterval
	}
	return &Graph{
		quoter:   quoter,
		interval: quoteInterval,
		log:      log.Named("arbitrage.graph"),
		points:   make(map[string]map[domain.DepthTier]domain.DepthPoint),
	}
}

// Run samples every pair's every venue on a fixed tick until ctx is
// canceled.
func (g *Graph) Run(ctx context.Context, pairs []domain.ResolvedPair) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.sampleAll(ctx, pairs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sampleAll(ctx, pairs)
		}
	}
}

func (g *Graph) sampleAll(ctx context.Context, pairs []domain.ResolvedPair) {
	for _, pair := range pairs {
		for _, venue := range pair.Venues {
			if err := g.Sample(ctx, pair, venue); err != nil {
				g.log.Warn("arbitrage depth sample failed", "pairId", pair.PairID, "venue", venue.Name, "error", err)
			}
		}
	}
}

// Sample quotes every depth tier of (pair, venue) base->quote and records
// the resulting DepthPoints, keyed relative to the 1x tier's price.
func (g *Graph) Sample(ctx context.Context, pair domain.ResolvedPair, venue domain.ResolvedVenue) error {
	tiers := make(map[domain.DepthTier]domain.DepthPoint, len(domain.DepthTiers))
	var basePrice float64

	for _, tier := range domain.DepthTiers {
		amountInFloat := pair.TradeSize * float64(tier)
		amountIn := domain.FromFloat(amountInFloat, pair.Base.Decimals)
		if amountIn.Sign() <= 0 {
			continue
		}

		amountOut, err := g.quoter.QuoteExactInputSingle(ctx, pair.ChainID, venue, pair.Base.Address, pair.Quote.Address, amountIn)
		if err != nil {
			return fmt.Errorf("graph: quote tier %v: %w", tier, err)
		}
		if amountOut.Sign() == 0 {
			continue // saturated venue; don't poison the curve with a 0 point
		}

		amountOutFloat := domain.ToFloat(amountOut, pair.Quote.Decimals)
		priceQuotePerBase := amountOutFloat / amountInFloat
		if tier == domain.PrimaryTier {
			basePrice = priceQuotePerBase
		}

		point := domain.DepthPoint{
			Multiplier:        tier,
			AmountIn:          amountInFloat,
			AmountOut:         amountOutFloat,
			PriceQuotePerBase: priceQuotePerBase,
			PriceBasePerQuote: safeInvert(priceQuotePerBase),
			UpdatedAtMs:       time.Now().UnixMilli(),
		}
		tiers[tier] = point
	}

	if basePrice > 0 {
		for tier, point := range tiers {
			point.SlippageBps = int64((point.PriceQuotePerBase/basePrice - 1) * 10_000)
			tiers[tier] = point
		}
	}

	key := pairVenueKey(pair.PairID, venue.Name)
	g.mu.Lock()
	g.points[key] = tiers
	g.mu.Unlock()
	return nil
}

func safeInvert(v float64) float64 {
	if v == 0 {
		return 0
	}
	return 1 / v
}

func pairVenueKey(pairID, venueName string) string {
	return pairID + "|" + venueName
}

// Primary returns the 1x-tier DepthPoint for (pairId, venue), and whether
// it is fresh: now - updatedAt <= 3*quoteInterval, per spec.md §4.K.
func (g *Graph) Primary(pairID, venueName string) (domain.DepthPoint, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tiers, ok := g.points[pairVenueKey(pairID, venueName)]
	if !ok {
		return domain.DepthPoint{}, false
	}
	p, ok := tiers[domain.PrimaryTier]
	if !ok {
		return domain.DepthPoint{}, false
	}
	fresh := time.Since(time.UnixMilli(p.UpdatedAtMs)) <= 3*g.interval
	return p, fresh
}

// Suggest returns the largest tier whose absolute slippage is within
// maxSlippageBps, falling back to the smallest sampled tier when none
// qualify, per spec.md §4.K's suggest(pair, venue, maxSlippageBps).
func (g *Graph) Suggest(pairID, venueName string, maxSlippageBps int64) domain.DepthTier {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tiers, ok := g.points[pairVenueKey(pairID, venueName)]
	if !ok || len(tiers) == 0 {
		return domain.PrimaryTier
	}

	var best domain.DepthTier
	haveBest := false
	smallest := domain.DepthTier(0)
	haveSmallest := false

	for tier, point := range tiers {
		if !haveSmallest || tier < smallest {
			smallest = tier
			haveSmallest = true
		}
		if abs64(point.SlippageBps) <= maxSlippageBps && (!haveBest || tier > best) {
			best = tier
			haveBest = true
		}
	}
	if haveBest {
		return best
	}
	return smallest
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
