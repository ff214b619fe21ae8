package intake

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dimajoyti/aave-sentinel/internal/chainpool"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/internal/xerrors"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// Pool event + Chainlink AnswerUpdated topic0 hashes, computed once at
// package init per spec.md §4.C's event list.
var (
	topicBorrow           = crypto.Keccak256Hash([]byte("Borrow(address,address,address,uint256,uint8,uint256,uint16)"))
	topicRepay            = crypto.Keccak256Hash([]byte("Repay(address,address,address,uint256,bool)"))
	topicSupply           = crypto.Keccak256Hash([]byte("Supply(address,address,address,uint256,uint16)"))
	topicWithdraw         = crypto.Keccak256Hash([]byte("Withdraw(address,address,address,uint256)"))
	topicLiquidationCall  = crypto.Keccak256Hash([]byte("LiquidationCall(address,address,address,uint256,uint256,address,bool)"))
	topicAnswerUpdated    = crypto.Keccak256Hash([]byte("AnswerUpdated(int256,uint256,uint256)"))
)

// borrowerTopicIndex gives the log.Topics[] index holding the borrower
// address for each Pool event, per Aave v3's indexed-parameter layout.
var borrowerTopicIndex = map[common.Hash]int{
	topicBorrow:          2, // onBehalfOf
	topicSupply:          2, // onBehalfOf
	topicRepay:           2, // user
	topicWithdraw:        2, // user
	topicLiquidationCall: 3, // user
}

// realtimeAction is the finer-grained dispatch spec.md §4.C's error
// classification resolves to: distinct from xerrors.Kind, which is the
// cross-package failure taxonomy, these are this watcher's own recovery
// actions.
type realtimeAction string

const (
	actionNone           realtimeAction = ""
	actionRateLimit      realtimeAction = "rate_limit"
	actionStaleFilter    realtimeAction = "stale_filter_restart"
	actionWSRecreate     realtimeAction = "ws_recreate"
	actionWSMigration    realtimeAction = "ws_migration"
)

// classifyRealtimeError maps a raw RPC error message plus the transport it
// occurred on to the recovery action spec.md §4.C names.
func classifyRealtimeError(msg string, kind evmclient.Kind) realtimeAction {
	if k, ok := xerrors.ClassifyRPCMessage(msg); ok && k == xerrors.KindRateLimited {
		return actionRateLimit
	}
	if containsFold(msg, "filter not found") {
		return actionStaleFilter
	}
	if containsFold(msg, "closed") && kind == evmclient.KindWS {
		return actionWSRecreate
	}
	if containsFold(msg, "resource not found") && kind == evmclient.KindHTTP {
		return actionWSMigration
	}
	return actionNone
}

func containsFold(s, sub string) bool {
	ls, lsub := toLowerASCII(s), toLowerASCII(sub)
	for i := 0; i+len(lsub) <= len(ls); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return true
		}
	}
	return false
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// backoffState is the mutable poll/cooldown schedule spec.md §4.C defines.
type backoffState struct {
	mu          sync.Mutex
	interval    time.Duration
	rateLimitCooldown time.Duration
}

const (
	backoffBase    = 500 * time.Millisecond
	backoffMax     = 5 * time.Second
	rateLimitBase  = 10 * time.Second
	rateLimitMax   = 60 * time.Second
)

func newBackoffState() *backoffState {
	return &backoffState{interval: backoffBase, rateLimitCooldown: rateLimitBase}
}

func (b *backoffState) onRateLimit() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interval *= 2
	if b.interval > backoffMax {
		b.interval = backoffMax
	}
	cooldown := b.rateLimitCooldown
	b.rateLimitCooldown *= 2
	if b.rateLimitCooldown > rateLimitMax {
		b.rateLimitCooldown = rateLimitMax
	}
	return cooldown
}

func (b *backoffState) onHealthyTick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interval = time.Duration(float64(b.interval) / 2)
	if b.interval < backoffBase {
		b.interval = backoffBase
	}
	b.rateLimitCooldown = rateLimitBase
}

func (b *backoffState) current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interval
}

// wsCooldownFor clamps 3x the current backoff interval into [30s, 300s], per
// spec.md §4.C.
func wsCooldownFor(interval time.Duration) time.Duration {
	d := interval * 3
	if d < 30*time.Second {
		return 30 * time.Second
	}
	if d > 300*time.Second {
		return 300 * time.Second
	}
	return d
}

// RefetchFuncs are the callbacks RealtimeWatcher invokes once a debounce
// window elapses; they are expected to re-run the relevant subgraph query
// and push fresh candidates into the shared Queue themselves.
type RefetchFuncs struct {
	Borrower func(ctx context.Context, borrower string)
	ChainWide func(ctx context.Context)
}

// RealtimeWatcher subscribes to Pool events and Chainlink AnswerUpdated
// events for one chain, preferring WS and falling back to HTTP polling, per
// spec.md §4.C.
type RealtimeWatcher struct {
	chainID       uint64
	pool          *chainpool.Pool
	oracleCache   *oracle.Cache
	poolAddress   common.Address
	feedAddresses []common.Address
	refetch       RefetchFuncs
	borrowerDeb   *Debouncer
	globalDeb     *Debouncer
	backoff       *backoffState
	log           *logger.Logger
}

// NewRealtimeWatcher builds a watcher for one chain's Pool contract and
// Chainlink feed addresses.
func NewRealtimeWatcher(chainID uint64, pool *chainpool.Pool, oracleCache *oracle.Cache, poolAddress string, feedAddresses []string, refetch RefetchFuncs, log *logger.Logger) *RealtimeWatcher {
	feeds := make([]common.Address, 0, len(feedAddresses))
	for _, f := range feedAddresses {
		feeds = append(feeds, common.HexToAddress(f))
	}
	return &RealtimeWatcher{
		chainID:       chainID,
		pool:          pool,
		oracleCache:   oracleCache,
		poolAddress:   common.HexToAddress(poolAddress),
		feedAddresses: feeds,
		refetch:       refetch,
		borrowerDeb:   NewDebouncer(BorrowerDebounce),
		globalDeb:     NewDebouncer(GlobalDebounce),
		backoff:       newBackoffState(),
		log:           log.ForChain(chainID).Named("realtime"),
	}
}

func (w *RealtimeWatcher) filterQuery(fromBlock *big.Int) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: fromBlock,
		Addresses: append([]common.Address{w.poolAddress}, w.feedAddresses...),
		Topics: [][]common.Hash{{
			topicBorrow, topicRepay, topicSupply, topicWithdraw, topicLiquidationCall, topicAnswerUpdated,
		}},
	}
}

// Run drives the subscribe-or-poll loop until ctx is canceled.
func (w *RealtimeWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.borrowerDeb.Stop()
			w.globalDeb.Stop()
			return
		default:
		}

		rc, err := w.pool.GetRealtimeClient(ctx, w.chainID)
		if err != nil {
			w.log.Warn("realtime client unavailable", "error", err)
			w.sleep(ctx, w.backoff.current())
			continue
		}

		if rc.Kind == evmclient.KindWS {
			w.runSubscription(ctx, rc)
		} else {
			w.runPoll(ctx, rc)
		}
	}
}

func (w *RealtimeWatcher) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *RealtimeWatcher) runSubscription(ctx context.Context, rc chainpool.RealtimeClient) {
	logs := make(chan types.Log, 256)
	sub, err := rc.Client.SubscribeFilterLogs(ctx, w.filterQuery(nil), logs)
	if err != nil {
		w.handleError(ctx, err.Error(), evmclient.KindWS)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				w.handleError(ctx, err.Error(), evmclient.KindWS)
			}
			return
		case l := <-logs:
			w.dispatch(ctx, l)
			w.backoff.onHealthyTick()
		}
	}
}

func (w *RealtimeWatcher) runPoll(ctx context.Context, rc chainpool.RealtimeClient) {
	ticker := time.NewTicker(w.backoff.current())
	defer ticker.Stop()

	var fromBlock *big.Int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logsFound, err := rc.Client.FilterLogs(ctx, w.filterQuery(fromBlock))
			if err != nil {
				w.handleError(ctx, err.Error(), evmclient.KindHTTP)
				return
			}
			for _, l := range logsFound {
				w.dispatch(ctx, l)
				if fromBlock == nil || l.BlockNumber >= fromBlock.Uint64() {
					fromBlock = new(big.Int).SetUint64(l.BlockNumber + 1)
				}
			}
			w.backoff.onHealthyTick()
			ticker.Reset(w.backoff.current())
		}
	}
}

func (w *RealtimeWatcher) handleError(ctx context.Context, msg string, kind evmclient.Kind) {
	action := classifyRealtimeError(msg, kind)
	switch action {
	case actionRateLimit:
		cooldown := w.backoff.onRateLimit()
		w.pool.CooldownWS(w.chainID, wsCooldownFor(w.backoff.current()))
		w.log.Warn("rate limited, cooling down", "cooldown", cooldown)
		w.sleep(ctx, cooldown)
	case actionStaleFilter:
		w.log.Info("filter stale, restarting subscription")
	case actionWSRecreate:
		w.pool.ReportWSClosed(w.chainID)
		w.log.Info("ws closed, recreating client")
	case actionWSMigration:
		w.log.Info("http resource not found, attempting ws migration")
	default:
		w.log.Warn("realtime transport error", "error", msg)
		w.sleep(ctx, w.backoff.current())
	}
}

func (w *RealtimeWatcher) dispatch(ctx context.Context, l types.Log) {
	if len(l.Topics) == 0 {
		return
	}
	topic0 := l.Topics[0]

	if topic0 == topicAnswerUpdated {
		feed := l.Address.Hex()
		w.globalDeb.Trigger("answer-updated", func() {
			w.oracleCache.InvalidatePrice(w.chainID, feed)
			if w.refetch.ChainWide != nil {
				w.refetch.ChainWide(ctx)
			}
		})
		return
	}

	idx, ok := borrowerTopicIndex[topic0]
	if !ok || idx >= len(l.Topics) {
		return
	}
	borrower := common.BytesToAddress(l.Topics[idx].Bytes()).Hex()
	w.borrowerDeb.Trigger(fmt.Sprintf("%d:%s", w.chainID, borrower), func() {
		if w.refetch.Borrower != nil {
			w.refetch.Borrower(ctx, borrower)
		}
	})
}
