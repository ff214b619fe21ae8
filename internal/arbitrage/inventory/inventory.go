// Package inventory implements spec.md §4.K's Inventory Manager: a 5s-TTL
// ERC-20 balance cache the fabric executor consults before spending a
// trade's input token, and a bridge-intent event stream raised when a
// chain's float can't cover a trade or a fill would drain most of it.
// Grounded on internal/executor/balance.go's cache shape and the teacher's
// internal/defi/arbitrage_detector.go opportunity-channel pattern for
// publishing discovered events off the hot path.
package inventory

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// balanceCacheTTL mirrors internal/executor/balance.go's 5s inventory-check
// cache window.
const balanceCacheTTL = 5 * time.Second

// drainWarnRatio is spec.md §4.K's "a fill drains > 50% of the per-chain
// float" threshold.
const drainWarnRatio = 0.5

const erc20ABIJSON = `[
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI abi.ABI

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("inventory: bad erc20 abi: " + err.Error())
	}
}

// ClientSource is the subset of chainpool.Pool the inventory manager depends
// on.
type ClientSource interface {
	GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error)
}

// BridgeIntentPriority classifies how urgently an inventory shortfall needs
// operator attention.
type BridgeIntentPriority string

const (
	PriorityLow    BridgeIntentPriority = "low"
	PriorityMedium BridgeIntentPriority = "medium"
	PriorityHigh   BridgeIntentPriority = "high"
)

// BridgeIntent is an event the Manager raises when a chain's token float
// can't cover an upcoming trade, or a fill would meaningfully deplete it.
type BridgeIntent struct {
	ChainID   uint64
	Token     string
	Holder    string
	Priority  BridgeIntentPriority
	Reason    string
	Balance   float64
	Required  float64
	Float     float64
	CreatedAt time.Time
}

// FloatConfig pins the reference balance ("float") a chain is expected to
// carry for a token; drain ratios are computed against this baseline rather
// than a running high-water mark, so a manually topped-up float is honored
// immediately rather than racing the cache.
type FloatConfig map[uint64]map[string]float64

type balanceKey struct {
	chainID uint64
	token   string
	holder  string
}

type cachedBalance struct {
	amount *big.Int
	at     time.Time
}

// Manager owns the cached ERC-20 balance reads and the bridge-intent events
// they trigger.
type Manager struct {
	clients ClientSource
	floats  FloatConfig
	log     *logger.Logger

	mu    sync.Mutex
	cache map[balanceKey]cachedBalance

	events chan BridgeIntent
}

// New builds a Manager. events is buffered; a full buffer drops the oldest
// intent rather than blocking the executor's hot path.
func New(clients ClientSource, floats FloatConfig, log *logger.Logger) *Manager {
	return &Manager{
		clients: clients,
		floats:  floats,
		log:     log.Named("arbitrage.inventory"),
		cache:   make(map[balanceKey]cachedBalance),
		events:  make(chan BridgeIntent, 64),
	}
}

// Events returns the channel bridge-intent events are published on.
func (m *Manager) Events() <-chan BridgeIntent { return m.events }

// CheckCoverage reports whether holder's cached balance of token on chainID
// covers amountFloat, raising a bridge-intent event when it can't, or when
// the fill would drain more than half of the chain's configured float.
func (m *Manager) CheckCoverage(ctx context.Context, chainID uint64, token domain.TokenInfo, holder string, amountFloat float64) (bool, error) {
	balance, err := m.balanceOf(ctx, chainID, token, holder)
	if err != nil {
		return false, err
	}
	balanceFloat := domain.ToFloat(balance, token.Decimals)
	float := m.floats[chainID][token.Address]

	if balanceFloat < amountFloat {
		m.publish(BridgeIntent{
			ChainID: chainID, Token: token.Address, Holder: holder,
			Priority: PriorityHigh, Reason: "insufficient balance to cover trade",
			Balance: balanceFloat, Required: amountFloat, Float: float, CreatedAt: time.Now(),
		})
		return false, nil
	}

	if float > 0 {
		remaining := balanceFloat - amountFloat
		if remaining < float*(1-drainWarnRatio) {
			m.publish(BridgeIntent{
				ChainID: chainID, Token: token.Address, Holder: holder,
				Priority: PriorityMedium, Reason: "fill would drain over half of chain float",
				Balance: balanceFloat, Required: amountFloat, Float: float, CreatedAt: time.Now(),
			})
		}
	}
	return true, nil
}

func (m *Manager) publish(intent BridgeIntent) {
	select {
	case m.events <- intent:
	default:
		<-m.events
		m.events <- intent
		m.log.Warn("bridge-intent event buffer full, dropped oldest", "chainId", intent.ChainID, "token", intent.Token)
	}
}

func (m *Manager) balanceOf(ctx context.Context, chainID uint64, token domain.TokenInfo, holder string) (*big.Int, error) {
	key := balanceKey{chainID: chainID, token: token.Address, holder: holder}

	m.mu.Lock()
	if c, ok := m.cache[key]; ok && time.Since(c.at) < balanceCacheTTL {
		m.mu.Unlock()
		return c.amount, nil
	}
	m.mu.Unlock()

	client, err := m.clients.GetClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	calldata, err := erc20ABI.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token.Address)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: calldata})
	if err != nil {
		return nil, fmt.Errorf("inventory: balanceOf: %w", err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("inventory: unpack balanceOf: %w", err)
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("inventory: unexpected balanceOf return type")
	}

	m.mu.Lock()
	m.cache[key] = cachedBalance{amount: amount, at: time.Now()}
	m.mu.Unlock()
	return amount, nil
}
