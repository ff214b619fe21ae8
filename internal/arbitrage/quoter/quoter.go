// Package quoter implements spec.md §4.K's Quoter Mesh: UniV3 QuoterV2
// reads with amountIn-halving retry on liquidity/price-limit errors, a
// per-(venue, direction) saturation backoff, and the ordered sqrtPriceLimit
// candidate list the spec names. Grounded on internal/oracle/cache.go's
// single-writer TTL cache shape, generalized to also own the quoter's
// retry/backoff state machine.
package quoter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// ClientSource is the subset of chainpool.Pool the mesh depends on.
type ClientSource interface {
	GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error)
}

const (
	// maxHalvings bounds how many times an amountIn is halved before the
	// mesh gives up on one sqrtPriceLimit candidate and tries the next.
	maxHalvings = 4

	// slot0CacheTTL is spec.md §4.K's "30 s" cache on the pool's current
	// sqrtPrice, used as the last-resort sqrtPriceLimit candidate.
	slot0CacheTTL = 30 * time.Second

	// saturationBackoffStart and saturationBackoffMax bound the
	// per-(venue, direction) backoff spec.md §4.K specifies for hard
	// price-limit saturation: "starting at 250 ms, doubling to 5 s".
	saturationBackoffStart = 250 * time.Millisecond
	saturationBackoffMax   = 5 * time.Second
)

// minSqrtRatio and maxSqrtRatio are Uniswap V3's TickMath bounds on a pool's
// sqrtPriceX96, used to build the clamped MIN+1/MAX-1 candidate.
var (
	minSqrtRatio = big.NewInt(4295128739)
	maxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)
)

type saturationState struct {
	backoff  time.Duration
	until    time.Time
}

type cachedSlot0 struct {
	sqrtPriceX96 *big.Int
	at           time.Time
}

// Mesh calls UniV3 QuoterV2 on behalf of the single-hop solver, applying
// spec.md §4.K's retry, backoff, and sqrtPriceLimit ordering rules.
type Mesh struct {
	clients ClientSource
	log     *logger.Logger

	mu         sync.Mutex
	saturation map[string]*saturationState
	slot0      map[string]cachedSlot0
}

// New builds a Mesh over the given client source.
func New(clients ClientSource, log *logger.Logger) *Mesh {
	return &Mesh{
		clients:    clients,
		log:        log.Named("arbitrage.quoter"),
		saturation: make(map[string]*saturationState),
		slot0:      make(map[string]cachedSlot0),
	}
}

// QuoteExactInputSingle quotes amountIn of tokenIn -> tokenOut against
// venue, walking the sqrtPriceLimit candidate order and halving amountIn on
// retryable errors. Returns 0 silently while the (venue, direction) pair is
// in its saturation backoff window.
func (m *Mesh) QuoteExactInputSingle(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	zeroForOne := strings.ToLower(tokenIn) < strings.ToLower(tokenOut)
	dirKey := fmt.Sprintf("%d:%s:%v", chainID, lower(venue.PoolAddress), zeroForOne)

	if m.inBackoff(dirKey) {
		return big.NewInt(0), nil
	}

	candidates, err := m.sqrtPriceLimitCandidates(ctx, chainID, venue, zeroForOne)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, limit := range candidates {
		out, err := m.quoteWithRetry(ctx, chainID, venue, tokenIn, tokenOut, amountIn, limit)
		if err == nil {
			m.clearBackoff(dirKey)
			return out, nil
		}
		lastErr = err
		if !isPriceLimitSaturation(err) {
			return nil, err
		}
	}

	m.recordSaturation(dirKey)
	m.log.Warn("arbitrage quoter saturated, backing off", "venue", venue.Name, "zeroForOne", zeroForOne, "error", lastErr)
	return big.NewInt(0), nil
}

// quoteWithRetry calls the quoter once per halving of amountIn until a call
// succeeds or a non-retryable error is hit, scaling the result back up by
// amountIn/attemptAmountIn per spec.md §4.K.
func (m *Mesh) quoteWithRetry(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn, sqrtPriceLimit *big.Int) (*big.Int, error) {
	attemptAmount := new(big.Int).Set(amountIn)
	var lastErr error

	for attempt := 0; attempt < maxHalvings; attempt++ {
		if attemptAmount.Sign() == 0 {
			break
		}
		out, err := m.call(ctx, chainID, venue, tokenIn, tokenOut, attemptAmount, sqrtPriceLimit)
		if err == nil {
			if attempt == 0 {
				return out, nil
			}
			return scaleUp(out, amountIn, attemptAmount), nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		attemptAmount = new(big.Int).Rsh(attemptAmount, 1)
	}
	return nil, lastErr
}

func scaleUp(quotedForAttempt, originalAmountIn, attemptAmountIn *big.Int) *big.Int {
	if attemptAmountIn.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(quotedForAttempt, originalAmountIn)
	return num.Div(num, attemptAmountIn)
}

func (m *Mesh) call(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, tokenIn, tokenOut string, amountIn, sqrtPriceLimit *big.Int) (*big.Int, error) {
	client, err := m.clients.GetClient(ctx, chainID)
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
		Fee:               big.NewInt(int64(venue.Fee)),
		SqrtPriceLimitX96: sqrtPriceLimit,
	}

	data, err := quoterABI.Pack("quoteExactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("quoter: pack: %w", err)
	}
	addr := common.HexToAddress(venue.Quoter)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		return nil, fmt.Errorf("quoter: quoteExactInputSingle: %w", err)
	}
	vals, err := quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("quoter: unpack: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// sqrtPriceLimitCandidates builds spec.md §4.K's ordered candidate list: the
// configured limit (if any), 0 (no limit), the clamped MIN+1/MAX-1 bound for
// the trade direction, and the pool's current slot0 price +-1.
func (m *Mesh) sqrtPriceLimitCandidates(ctx context.Context, chainID uint64, venue domain.ResolvedVenue, zeroForOne bool) ([]*big.Int, error) {
	var candidates []*big.Int

	if venue.SqrtPriceLimit != "" {
		if v, ok := new(big.Int).SetString(venue.SqrtPriceLimit, 10); ok {
			candidates = append(candidates, v)
		}
	}
	candidates = append(candidates, big.NewInt(0))

	if zeroForOne {
		candidates = append(candidates, new(big.Int).Add(minSqrtRatio, big.NewInt(1)))
	} else {
		candidates = append(candidates, new(big.Int).Sub(maxSqrtRatio, big.NewInt(1)))
	}

	current, err := m.currentSqrtPrice(ctx, chainID, venue.PoolAddress)
	if err == nil && current != nil && current.Sign() > 0 {
		if zeroForOne {
			candidates = append(candidates, new(big.Int).Sub(current, big.NewInt(1)))
		} else {
			candidates = append(candidates, new(big.Int).Add(current, big.NewInt(1)))
		}
	}

	return candidates, nil
}

func (m *Mesh) currentSqrtPrice(ctx context.Context, chainID uint64, pool string) (*big.Int, error) {
	key := fmt.Sprintf("%d:%s", chainID, lower(pool))

	m.mu.Lock()
	if c, ok := m.slot0[key]; ok && time.Since(c.at) < slot0CacheTTL {
		m.mu.Unlock()
		return c.sqrtPriceX96, nil
	}
	m.mu.Unlock()

	client, err := m.clients.GetClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	data, err := poolABI.Pack("slot0")
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(pool)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data})
	if err != nil {
		return nil, err
	}
	vals, err := poolABI.Unpack("slot0", out)
	if err != nil || len(vals) == 0 {
		return nil, fmt.Errorf("quoter: unpack slot0: %w", err)
	}
	sqrtPrice := vals[0].(*big.Int)

	m.mu.Lock()
	m.slot0[key] = cachedSlot0{sqrtPriceX96: sqrtPrice, at: time.Now()}
	m.mu.Unlock()

	return sqrtPrice, nil
}

func (m *Mesh) inBackoff(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saturation[key]
	return ok && time.Now().Before(s.until)
}

func (m *Mesh) recordSaturation(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saturation[key]
	if !ok {
		s = &saturationState{backoff: saturationBackoffStart}
		m.saturation[key] = s
	} else if s.backoff < saturationBackoffMax {
		s.backoff *= 2
		if s.backoff > saturationBackoffMax {
			s.backoff = saturationBackoffMax
		}
	}
	s.until = time.Now().Add(s.backoff)
}

func (m *Mesh) clearBackoff(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saturation, key)
}

// isRetryable matches spec.md §4.K's amountIn-halving trigger set.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"spl", "insufficient liquidity", "price limit", "unexpected error"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// isPriceLimitSaturation narrows isRetryable's set to the "hard" saturation
// case that arms the backoff rather than just retrying with a smaller size.
func isPriceLimitSaturation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "spl") || strings.Contains(msg, "price limit")
}

func lower(s string) string {
	return strings.ToLower(s)
}
