package executor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// balanceCacheTTL is spec.md §4.I's "5 s cache" for the contract's
// debt-token balance read that decides inventory vs. flash mode.
const balanceCacheTTL = 5 * time.Second

type balanceKey struct {
	chainID uint64
	token   string
	holder  string
}

type cachedBalance struct {
	amount *big.Int
	at     time.Time
}

// balanceCache memoizes ERC-20 balanceOf reads for balanceCacheTTL.
type balanceCache struct {
	mu    sync.Mutex
	cache map[balanceKey]cachedBalance
}

func newBalanceCache() *balanceCache {
	return &balanceCache{cache: make(map[balanceKey]cachedBalance)}
}

type callContract interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

func (b *balanceCache) balanceOf(ctx context.Context, client callContract, chainID uint64, token, holder string) (*big.Int, error) {
	key := balanceKey{chainID: chainID, token: token, holder: holder}

	b.mu.Lock()
	if c, ok := b.cache[key]; ok && time.Since(c.at) < balanceCacheTTL {
		b.mu.Unlock()
		return c.amount, nil
	}
	b.mu.Unlock()

	calldata, err := erc20ABI.Pack("balanceOf", common.HexToAddress(holder))
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: calldata})
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) != 1 {
		return nil, err
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, err
	}

	b.mu.Lock()
	b.cache[key] = cachedBalance{amount: amount, at: time.Now()}
	b.mu.Unlock()
	return amount, nil
}
