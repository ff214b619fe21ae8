// Package oracle implements spec.md §4.B: TTL-bounded Chainlink-style feed
// reads with USD conversion, a DEX-quote comparison gap, and the L2
// sequencer health gate. Price and route-quote caches are single, explicit
// structures owned by this package and passed to callers — no package-level
// globals, per spec.md's "no hidden globals" note.
package oracle

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

const (
	// PriceTTL bounds how long a Chainlink read is trusted before it is
	// considered stale and a fresh eth_call is required.
	PriceTTL = 15 * time.Second
	// RouteQuoteTTL bounds how long a DEX route quote is cached.
	RouteQuoteTTL = 5 * time.Second
)

// ClientSource is the subset of chainpool.Pool this package depends on.
type ClientSource interface {
	GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error)
}

// PriceResult is the output of PriceUSD.
type PriceResult struct {
	Price     float64
	UpdatedAt time.Time
	Stale     bool
}

type roundData struct {
	roundID         *big.Int
	answer          *big.Int
	startedAt       *big.Int
	updatedAt       *big.Int
	answeredInRound *big.Int
	decimals        uint8
}

type cachedPrice struct {
	result    PriceResult
	fetchedAt time.Time
}

type cachedQuote struct {
	amountOut *big.Int
	fetchedAt time.Time
}

// Cache is the shared oracle state: price reads and DEX route quotes, each
// TTL-bounded and coalesced across concurrent callers of the same key.
type Cache struct {
	clients ClientSource
	log     *logger.Logger

	mu     sync.Mutex
	prices map[string]cachedPrice
	quotes map[string]cachedQuote

	group singleflight.Group
}

// New builds a Cache over the given client source.
func New(clients ClientSource, log *logger.Logger) *Cache {
	return &Cache{
		clients: clients,
		log:     log.Named("oracle"),
		prices:  make(map[string]cachedPrice),
		quotes:  make(map[string]cachedQuote),
	}
}

func priceKey(chainID uint64, feedAddress string) string {
	return fmt.Sprintf("%d:%s", chainID, feedAddress)
}

// PriceUSD resolves the USD price of token on chainID, reading
// latestRoundData and falling back to the legacy latestAnswer/
// latestTimestamp pair on revert, per spec.md §4.B. When the feed reports in
// ETH or BTC, the result is chained through the chain's configured ETH/USD
// or BTC/USD feed.
func (c *Cache) PriceUSD(ctx context.Context, chain domain.ChainConfig, token domain.TokenInfo) (PriceResult, error) {
	if token.FeedAddress == "" {
		return PriceResult{}, fmt.Errorf("oracle: token has no feed address configured")
	}

	leg, err := c.readFeed(ctx, chain.ChainID, token.FeedAddress)
	if err != nil {
		return PriceResult{}, err
	}

	switch token.FeedDenomination {
	case domain.DenomETH:
		quote, err := c.readFeed(ctx, chain.ChainID, chain.EthUsdFeedAddress)
		if err != nil {
			return PriceResult{}, fmt.Errorf("oracle: eth/usd chain leg: %w", err)
		}
		return chainLegs(leg, quote), nil
	case domain.DenomBTC:
		quote, err := c.readFeed(ctx, chain.ChainID, chain.BtcUsdFeedAddress)
		if err != nil {
			return PriceResult{}, fmt.Errorf("oracle: btc/usd chain leg: %w", err)
		}
		return chainLegs(leg, quote), nil
	default:
		return leg, nil
	}
}

func chainLegs(base, quote PriceResult) PriceResult {
	updatedAt := base.UpdatedAt
	if quote.UpdatedAt.Before(updatedAt) {
		updatedAt = quote.UpdatedAt
	}
	return PriceResult{
		Price:     base.Price * quote.Price,
		UpdatedAt: updatedAt,
		Stale:     base.Stale || quote.Stale,
	}
}

// readFeed returns the cached or freshly-read USD (or native) price for one
// aggregator address, coalescing concurrent callers of the same key.
func (c *Cache) readFeed(ctx context.Context, chainID uint64, feedAddress string) (PriceResult, error) {
	key := priceKey(chainID, feedAddress)

	c.mu.Lock()
	if cached, ok := c.prices[key]; ok && time.Since(cached.fetchedAt) < PriceTTL {
		c.mu.Unlock()
		return cached.result, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetchFeed(ctx, chainID, feedAddress)
	})
	if err != nil {
		return PriceResult{}, err
	}
	result := v.(PriceResult)

	c.mu.Lock()
	c.prices[key] = cachedPrice{result: result, fetchedAt: time.Now()}
	c.mu.Unlock()

	return result, nil
}

func (c *Cache) fetchFeed(ctx context.Context, chainID uint64, feedAddress string) (PriceResult, error) {
	client, err := c.clients.GetClient(ctx, chainID)
	if err != nil {
		return PriceResult{}, err
	}

	rd, err := callLatestRoundData(ctx, client, feedAddress)
	if err != nil {
		rd, err = callLegacyLatestAnswer(ctx, client, feedAddress)
		if err != nil {
			return PriceResult{}, fmt.Errorf("oracle: feed %s unreadable: %w", feedAddress, err)
		}
	}

	updatedAt := time.Unix(rd.updatedAt.Int64(), 0)
	stale := rd.answer.Sign() <= 0 ||
		rd.updatedAt.Sign() == 0 ||
		(rd.answeredInRound != nil && rd.roundID != nil && rd.answeredInRound.Cmp(rd.roundID) < 0) ||
		time.Since(updatedAt) > PriceTTL

	price := scaledToFloat(rd.answer, rd.decimals)

	return PriceResult{Price: price, UpdatedAt: updatedAt, Stale: stale}, nil
}

func scaledToFloat(v *big.Int, decimals uint8) float64 {
	f := new(big.Float).SetInt(v)
	scale := new(big.Float).SetFloat64(math.Pow10(int(decimals)))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

func callLatestRoundData(ctx context.Context, client *evmclient.Client, feedAddress string) (roundData, error) {
	data, err := aggregatorABI.Pack("latestRoundData")
	if err != nil {
		return roundData{}, err
	}
	addr := common.HexToAddress(feedAddress)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		return roundData{}, fmt.Errorf("latestRoundData: %w", err)
	}
	vals, err := aggregatorABI.Unpack("latestRoundData", out)
	if err != nil || len(vals) != 5 {
		return roundData{}, fmt.Errorf("latestRoundData: unpack: %w", err)
	}

	decimals, err := callDecimals(ctx, client, feedAddress)
	if err != nil {
		decimals = 8
	}

	return roundData{
		roundID:         vals[0].(*big.Int),
		answer:          vals[1].(*big.Int),
		startedAt:       vals[2].(*big.Int),
		updatedAt:       vals[3].(*big.Int),
		answeredInRound: vals[4].(*big.Int),
		decimals:        decimals,
	}, nil
}

func callLegacyLatestAnswer(ctx context.Context, client *evmclient.Client, feedAddress string) (roundData, error) {
	addr := common.HexToAddress(feedAddress)

	answerData, err := aggregatorABI.Pack("latestAnswer")
	if err != nil {
		return roundData{}, err
	}
	answerOut, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: answerData})
	if err != nil {
		return roundData{}, fmt.Errorf("latestAnswer: %w", err)
	}
	answerVals, err := aggregatorABI.Unpack("latestAnswer", answerOut)
	if err != nil || len(answerVals) != 1 {
		return roundData{}, fmt.Errorf("latestAnswer: unpack: %w", err)
	}

	tsData, err := aggregatorABI.Pack("latestTimestamp")
	if err != nil {
		return roundData{}, err
	}
	tsOut, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: tsData})
	if err != nil {
		return roundData{}, fmt.Errorf("latestTimestamp: %w", err)
	}
	tsVals, err := aggregatorABI.Unpack("latestTimestamp", tsOut)
	if err != nil || len(tsVals) != 1 {
		return roundData{}, fmt.Errorf("latestTimestamp: unpack: %w", err)
	}

	decimals, err := callDecimals(ctx, client, feedAddress)
	if err != nil {
		decimals = 8
	}

	updatedAt := tsVals[0].(*big.Int)
	return roundData{
		roundID:         big.NewInt(0),
		answer:          answerVals[0].(*big.Int),
		startedAt:       updatedAt,
		updatedAt:       updatedAt,
		answeredInRound: big.NewInt(0),
		decimals:        decimals,
	}, nil
}

func callDecimals(ctx context.Context, client *evmclient.Client, feedAddress string) (uint8, error) {
	data, err := aggregatorABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	addr := common.HexToAddress(feedAddress)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		return 0, err
	}
	vals, err := aggregatorABI.Unpack("decimals", out)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("decimals: unpack: %w", err)
	}
	return vals[0].(uint8), nil
}

// OracleDexGapBps compares the Chainlink-implied unit price of
// collateral→debt against the best UniV3 quote at unit input, per
// spec.md §4.B. Returns 0 (gate disabled) when either leg's oracle price is
// unavailable or stale.
func (c *Cache) OracleDexGapBps(ctx context.Context, chain domain.ChainConfig, collateral, debt domain.TokenInfo, fee uint32, router string) (int, error) {
	collPrice, err := c.PriceUSD(ctx, chain, collateral)
	if err != nil || collPrice.Stale || collPrice.Price <= 0 {
		return 0, nil
	}
	debtPrice, err := c.PriceUSD(ctx, chain, debt)
	if err != nil || debtPrice.Stale || debtPrice.Price <= 0 {
		return 0, nil
	}
	oraclePrice := collPrice.Price / debtPrice.Price

	if router == "" {
		router = chain.UniV3Quoter
	}
	if router == "" {
		return 0, nil
	}

	unitIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(collateral.Decimals)), nil)
	amountOut, err := c.QuoteExactInputSingle(ctx, chain.ChainID, router, collateral.Address, debt.Address, fee, unitIn)
	if err != nil {
		return 0, nil
	}

	dexOut := scaledToFloat(amountOut, debt.Decimals)
	dexPrice := dexOut // dexOut is already debt-per-unit-collateral at unitIn = 1 collateral

	gap := math.Abs(dexPrice/oraclePrice-1) * 10_000
	return int(math.Round(gap)), nil
}

func quoteKey(chainID uint64, quoter, tokenIn, tokenOut string, fee uint32, amountIn *big.Int) string {
	return fmt.Sprintf("%d:%s:%s:%s:%d:%s", chainID, quoter, tokenIn, tokenOut, fee, amountIn.String())
}

// QuoteExactInputSingle calls the UniV3 quoter's quoteExactInputSingle,
// caching results for RouteQuoteTTL.
func (c *Cache) QuoteExactInputSingle(ctx context.Context, chainID uint64, quoter, tokenIn, tokenOut string, fee uint32, amountIn *big.Int) (*big.Int, error) {
	key := quoteKey(chainID, quoter, tokenIn, tokenOut, fee, amountIn)

	c.mu.Lock()
	if cached, ok := c.quotes[key]; ok && time.Since(cached.fetchedAt) < RouteQuoteTTL {
		c.mu.Unlock()
		return cached.amountOut, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("quote:"+key, func() (interface{}, error) {
		return c.fetchQuote(ctx, chainID, quoter, tokenIn, tokenOut, fee, amountIn)
	})
	if err != nil {
		return nil, err
	}
	amountOut := v.(*big.Int)

	c.mu.Lock()
	c.quotes[key] = cachedQuote{amountOut: amountOut, fetchedAt: time.Now()}
	c.mu.Unlock()

	return amountOut, nil
}

func (c *Cache) fetchQuote(ctx context.Context, chainID uint64, quoter, tokenIn, tokenOut string, fee uint32, amountIn *big.Int) (*big.Int, error) {
	client, err := c.clients.GetClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	type quoteParams struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}
	params := quoteParams{
		TokenIn:           common.HexToAddress(tokenIn),
		TokenOut:          common.HexToAddress(tokenOut),
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := quoterABI.Pack("quoteExactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("pack quoteExactInputSingle: %w", err)
	}

	addr := common.HexToAddress(quoter)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		return nil, fmt.Errorf("quoteExactInputSingle: %w", err)
	}
	vals, err := quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("quoteExactInputSingle: unpack: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// InvalidatePrice evicts the cached price for one feed, used by the realtime
// watcher on an AnswerUpdated tick so the next PriceUSD call re-reads it.
func (c *Cache) InvalidatePrice(chainID uint64, feedAddress string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prices, priceKey(chainID, feedAddress))
}

// SequencerOK implements spec.md §4.B's sequencer health gate: ok when the
// feed's answer is 0 and at least gracePeriod has elapsed since startedAt;
// stale (treated as down) when the feed's updatedAt is older than
// staleAfter. Returns true (healthy) when no sequencer feed is configured —
// most L2s besides OP-stack chains don't have one.
func (c *Cache) SequencerOK(ctx context.Context, chain domain.ChainConfig, gracePeriod, staleAfter time.Duration) (bool, error) {
	if chain.SequencerFeedAddress == "" {
		return true, nil
	}

	client, err := c.clients.GetClient(ctx, chain.ChainID)
	if err != nil {
		return false, err
	}
	rd, err := callLatestRoundData(ctx, client, chain.SequencerFeedAddress)
	if err != nil {
		return false, fmt.Errorf("oracle: sequencer feed unreadable: %w", err)
	}

	updatedAt := time.Unix(rd.updatedAt.Int64(), 0)
	if time.Since(updatedAt) > staleAfter {
		return false, nil
	}

	startedAt := time.Unix(rd.startedAt.Int64(), 0)
	ok := rd.answer.Sign() == 0 && time.Since(startedAt) >= gracePeriod
	return ok, nil
}
