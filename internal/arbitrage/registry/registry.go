// Package registry implements spec.md §4.K's Pair Registry: resolving each
// configured (chain, pair, venue) to a concrete UniV3-form pool address and
// dropping any pair that can't field at least domain.MinViableVenues of
// them. Grounded on internal/oracle/cache.go's client-call shape (a single
// ClientSource dependency, an in-memory map cache, no hidden globals).
package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// ClientSource is the subset of chainpool.Pool the registry depends on.
type ClientSource interface {
	GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error)
}

// Registry resolves and caches pool addresses for configured pairs.
type Registry struct {
	clients ClientSource
	log     *logger.Logger

	mu    sync.Mutex
	pools map[string]string // cache key -> pool address
}

// New builds a Registry over the given client source.
func New(clients ClientSource, log *logger.Logger) *Registry {
	return &Registry{
		clients: clients,
		log:     log.Named("arbitrage.registry"),
		pools:   make(map[string]string),
	}
}

// Resolve narrows pairs to their viable venues, dropping any pair left with
// fewer than domain.MinViableVenues after resolution. Unviable individual
// venues (unresolvable pool, zero address) are logged and skipped rather
// than failing the whole pair.
func (r *Registry) Resolve(ctx context.Context, pairs []domain.PairConfig) []domain.ResolvedPair {
	resolved := make([]domain.ResolvedPair, 0, len(pairs))
	for _, pair := range pairs {
		var viable []domain.ResolvedVenue
		for _, venue := range pair.Venues {
			addr, err := r.poolAddress(ctx, pair.ChainID, pair.Base.Address, pair.Quote.Address, venue)
			if err != nil {
				r.log.Warn("arbitrage venue unresolvable", "pairId", pair.PairID, "venue", venue.Name, "error", err)
				continue
			}
			viable = append(viable, domain.ResolvedVenue{VenueConfig: venue, PoolAddress: addr})
		}
		if len(viable) < domain.MinViableVenues {
			r.log.Warn("arbitrage pair dropped, too few viable venues", "pairId", pair.PairID, "viable", len(viable), "required", domain.MinViableVenues)
			continue
		}
		resolved = append(resolved, domain.ResolvedPair{PairConfig: pair, Venues: viable})
	}
	return resolved
}

// poolAddress resolves venue to a pool address: an explicitly configured
// pool wins outright; otherwise the factory's getPool is called and cached.
func (r *Registry) poolAddress(ctx context.Context, chainID uint64, tokenA, tokenB string, venue domain.VenueConfig) (string, error) {
	if venue.Pool != "" {
		return venue.Pool, nil
	}
	if venue.Factory == "" {
		return "", fmt.Errorf("registry: venue %q has neither pool nor factory configured", venue.Name)
	}

	key := fmt.Sprintf("%d:%s:%s:%s:%d", chainID, lower(venue.Factory), lower(tokenA), lower(tokenB), venue.Fee)
	r.mu.Lock()
	if addr, ok := r.pools[key]; ok {
		r.mu.Unlock()
		return addr, nil
	}
	r.mu.Unlock()

	client, err := r.clients.GetClient(ctx, chainID)
	if err != nil {
		return "", err
	}

	data, err := factoryABI.Pack("getPool", common.HexToAddress(tokenA), common.HexToAddress(tokenB), big.NewInt(int64(venue.Fee)))
	if err != nil {
		return "", fmt.Errorf("registry: pack getPool: %w", err)
	}
	factoryAddr := common.HexToAddress(venue.Factory)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &factoryAddr, Data: data})
	if err != nil {
		return "", fmt.Errorf("registry: getPool: %w", err)
	}
	vals, err := factoryABI.Unpack("getPool", out)
	if err != nil || len(vals) != 1 {
		return "", fmt.Errorf("registry: unpack getPool: %w", err)
	}
	pool, ok := vals[0].(common.Address)
	if !ok || pool == (common.Address{}) {
		return "", fmt.Errorf("registry: no pool for venue %q", venue.Name)
	}

	addr := pool.Hex()
	r.mu.Lock()
	r.pools[key] = addr
	r.mu.Unlock()
	return addr, nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

