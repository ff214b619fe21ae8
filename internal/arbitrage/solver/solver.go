// Package solver implements spec.md §4.K's Single-Hop Solver: for every
// ordered pair of venues quoting the same (pair.Base, pair.Quote), size a
// round-trip trade against the Price Graph's slippage budget, quote it live
// through the Quoter Mesh, and accept it as a QuoteEdge when its net USD and
// pnl-per-gas both clear their floors. Grounded on internal/simulator's
// route-selection and gas-to-USD conversion shape, generalized from a
// single-route liquidation plan to a two-leg round trip.
package solver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dimajoyti/aave-sentinel/internal/control"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// preFilterRatio is spec.md §4.K's "below 0.6*minNetUsd, skip" pre-filter
// threshold applied to the graph-estimated (not live-quoted) net USD.
const preFilterRatio = 0.6

// gasUnitsHint is the solver's flat gas-units estimate for a two-leg
// flash-swap-then-swap round trip; the fabric executor's own pre-send
// estimateGas call is authoritative, this is only used to pre-screen edges.
const gasUnitsHint = 260_000

// Quoter is the subset of quoter.Mesh the solver depends on.
type Quoter interface {
	QuoteExactInputSingle(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)
}

// Graph is the subset of graph.Graph the solver depends on.
type Graph interface {
	Primary(pairID, venueName string) (domain.DepthPoint, bool)
	Suggest(pairID, venueName string, maxSlippageBps int64) domain.DepthTier
}

// ClientSource is the subset of chainpool.Pool the solver depends on for
// its gas-price pre-screen.
type ClientSource interface {
	GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error)
}

// Solver produces QuoteEdges for one resolved pair's venue mesh.
type Solver struct {
	quoter  Quoter
	graph   Graph
	oracle  *oracle.Cache
	clients ClientSource
	edges   *control.Throttle
	log     *logger.Logger
}

// New builds a Solver.
func New(quoter Quoter, graph Graph, oracleCache *oracle.Cache, clients ClientSource, edges *control.Throttle, log *logger.Logger) *Solver {
	return &Solver{
		quoter:  quoter,
		graph:   graph,
		oracle:  oracleCache,
		clients: clients,
		edges:   edges,
		log:     log.Named("arbitrage.solver"),
	}
}

// Solve quotes every ordered (sell, buy) venue combination of pair and
// returns the QuoteEdges that clear the pair's (or the fabric's global)
// floors. chain supplies the native-token USD feed used to convert gas to
// USD; edgeThrottleLimit is the edge throttle's per-window limit.
func (s *Solver) Solve(ctx context.Context, chain domain.ChainConfig, pair domain.ResolvedPair, edgeThrottleLimit int, globalMinNetUSD, globalMinPnlMultiple float64) ([]domain.QuoteEdge, error) {
	if len(pair.Venues) < domain.MinViableVenues {
		return nil, nil
	}

	allowed, err := s.edges.EdgeAllowed(ctx, pair.ChainID, pair.PairID, edgeThrottleLimit)
	if err != nil {
		return nil, fmt.Errorf("solver: edge throttle: %w", err)
	}
	if !allowed {
		return nil, nil
	}

	gasUSD, err := s.estimateGasUSD(ctx, chain)
	if err != nil {
		s.log.Warn("arbitrage gas estimate unavailable, skipping pair this tick", "pairId", pair.PairID, "error", err)
		return nil, nil
	}

	basePrice, err := s.oracle.PriceUSD(ctx, chain, pair.Base)
	if err != nil || basePrice.Stale || basePrice.Price <= 0 {
		return nil, nil
	}

	minNetUSD := pair.MinNetUSD
	if minNetUSD == 0 {
		minNetUSD = globalMinNetUSD
	}
	minPnlMultiple := pair.MinPnlMultiple
	if minPnlMultiple == 0 {
		minPnlMultiple = globalMinPnlMultiple
	}
	maxSlippageBps := int64(pair.MaxSlippageBps)
	if maxSlippageBps == 0 {
		maxSlippageBps = 50
	}

	var edges []domain.QuoteEdge
	for _, sell := range pair.Venues {
		for _, buy := range pair.Venues {
			if sell.Name == buy.Name {
				continue
			}
			edge, ok, err := s.solveOne(ctx, pair, sell, buy, maxSlippageBps, minNetUSD, minPnlMultiple, gasUSD, basePrice.Price)
			if err != nil {
				s.log.Warn("arbitrage edge quote failed", "pairId", pair.PairID, "sell", sell.Name, "buy", buy.Name, "error", err)
				continue
			}
			if ok {
				edges = append(edges, edge)
			}
		}
	}
	return edges, nil
}

func (s *Solver) solveOne(ctx context.Context, pair domain.ResolvedPair, sell, buy domain.ResolvedVenue, maxSlippageBps int64, minNetUSD, minPnlMultiple, gasUSD, basePriceUSD float64) (domain.QuoteEdge, bool, error) {
	sellTier := s.graph.Suggest(pair.PairID, sell.Name, maxSlippageBps)
	buyTier := s.graph.Suggest(pair.PairID, buy.Name, maxSlippageBps)
	tier := minTier(domain.PrimaryTier, sellTier, buyTier)

	tradeBaseFloat := pair.TradeSize * float64(tier)
	if tradeBaseFloat <= 0 {
		return domain.QuoteEdge{}, false, nil
	}

	if !s.passesPreFilter(pair, sell, buy, tradeBaseFloat, basePriceUSD, minNetUSD) {
		return domain.QuoteEdge{}, false, nil
	}

	tradeBase := domain.FromFloat(tradeBaseFloat, pair.Base.Decimals)
	quotedQuote, err := s.quoter.QuoteExactInputSingle(ctx, pair.ChainID, sell, pair.Base.Address, pair.Quote.Address, tradeBase)
	if err != nil {
		return domain.QuoteEdge{}, false, err
	}
	if quotedQuote.Sign() == 0 {
		return domain.QuoteEdge{}, false, nil // sell venue saturated this tick
	}

	boughtBase, err := s.quoter.QuoteExactInputSingle(ctx, pair.ChainID, buy, pair.Quote.Address, pair.Base.Address, quotedQuote)
	if err != nil {
		return domain.QuoteEdge{}, false, err
	}
	if boughtBase.Sign() == 0 {
		return domain.QuoteEdge{}, false, nil // buy venue saturated this tick
	}

	quotedQuoteFloat := domain.ToFloat(quotedQuote, pair.Quote.Decimals)
	boughtBaseFloat := domain.ToFloat(boughtBase, pair.Base.Decimals)
	netBaseFloat := boughtBaseFloat - tradeBaseFloat
	if netBaseFloat <= 0 {
		return domain.QuoteEdge{}, false, nil
	}

	netUSD := netBaseFloat * basePriceUSD
	pnlMultiple := netUSD / gasUSD
	if netUSD < minNetUSD || pnlMultiple < minPnlMultiple {
		return domain.QuoteEdge{}, false, nil
	}

	edge := domain.QuoteEdge{
		ID:     fmt.Sprintf("%s:%s->%s:%s", pair.PairID, sell.Name, buy.Name, uuid.New().String()),
		Source: domain.EdgeSingleHop,
		Legs: []domain.Leg{
			{Kind: "flash-swap", Venue: sell.Name, TokenIn: pair.Base.Address, TokenOut: pair.Quote.Address, AmountIn: tradeBaseFloat, AmountOut: quotedQuoteFloat},
			{Kind: "swap", Venue: buy.Name, TokenIn: pair.Quote.Address, TokenOut: pair.Base.Address, AmountIn: quotedQuoteFloat, AmountOut: boughtBaseFloat},
		},
		SizeIn:    tradeBaseFloat,
		EstNetUSD: netUSD,
		EstGasUSD: gasUSD,
		Risk:      riskFor(pnlMultiple),
		CreatedAt: time.Now(),
		Tags:      []string{"single-hop", pair.PairID},
		Metrics:   map[string]float64{"pnlMultiple": pnlMultiple, "netBase": netBaseFloat},
		Metadata:  map[string]interface{}{"basePriceUsd": basePriceUSD, "sizeMultiplier": float64(tier)},
	}
	return edge, true, nil
}

// passesPreFilter estimates net USD from the (cheap, cached) price graph
// before issuing any live quote, per spec.md §4.K's "below 0.6*minNetUsd,
// skip" rule. A missing or stale graph sample lets the edge through to the
// live quote path rather than blocking it.
func (s *Solver) passesPreFilter(pair domain.ResolvedPair, sell, buy domain.ResolvedVenue, tradeBaseFloat, basePriceUSD, minNetUSD float64) bool {
	sellPoint, sellFresh := s.graph.Primary(pair.PairID, sell.Name)
	buyPoint, buyFresh := s.graph.Primary(pair.PairID, buy.Name)
	if !sellFresh || !buyFresh || sellPoint.PriceQuotePerBase <= 0 || buyPoint.PriceBasePerQuote <= 0 {
		return true
	}

	estimatedQuoteOut := tradeBaseFloat * sellPoint.PriceQuotePerBase
	estimatedBaseBack := estimatedQuoteOut * buyPoint.PriceBasePerQuote
	estimatedNetUSD := (estimatedBaseBack - tradeBaseFloat) * basePriceUSD

	return estimatedNetUSD >= preFilterRatio*minNetUSD
}

func (s *Solver) estimateGasUSD(ctx context.Context, chain domain.ChainConfig) (float64, error) {
	if chain.EthUsdFeedAddress == "" {
		return 0, fmt.Errorf("solver: no eth/usd feed configured for chain %d", chain.ChainID)
	}
	client, err := s.clients.GetClient(ctx, chain.ChainID)
	if err != nil {
		return 0, err
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, err
	}
	weiCost := new(big.Int).Mul(big.NewInt(gasUnitsHint), gasPrice)

	nativePrice, err := s.oracle.PriceUSD(ctx, chain, domain.TokenInfo{FeedAddress: chain.EthUsdFeedAddress})
	if err != nil || nativePrice.Price <= 0 {
		return 0, fmt.Errorf("solver: native price unavailable")
	}
	return domain.ToFloat(weiCost, 18) * nativePrice.Price, nil
}

func riskFor(pnlMultiple float64) domain.EdgeRisk {
	switch {
	case pnlMultiple >= 5:
		return domain.EdgeRisk{Confidence: 0.9, Level: "low"}
	case pnlMultiple >= 2:
		return domain.EdgeRisk{Confidence: 0.6, Level: "medium"}
	default:
		return domain.EdgeRisk{Confidence: 0.3, Level: "high"}
	}
}

func minTier(tiers ...domain.DepthTier) domain.DepthTier {
	min := tiers[0]
	for _, t := range tiers[1:] {
		if t < min {
			min = t
		}
	}
	return min
}
