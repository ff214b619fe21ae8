// Package chainpool implements spec.md §4.A: per-chain cached HTTP and
// optional WebSocket RPC clients, with WS eviction on a "closed" error and a
// cooldown timer that can force realtime reads onto HTTP.
package chainpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// RealtimeClient is what getRealtimeClient returns: a client plus which
// transport served it, so callers can tell WS subscriptions from HTTP
// polling fallback apart.
type RealtimeClient struct {
	Client *evmclient.Client
	Kind   evmclient.Kind
}

type chainEntry struct {
	mu          sync.Mutex
	http        *evmclient.Client
	ws          *evmclient.Client
	wsCoolUntil time.Time
}

// Pool owns at most one HTTP and one WS client per chain id at a time.
type Pool struct {
	chains map[uint64]domain.ChainConfig
	log    *logger.Logger

	mu      sync.Mutex
	entries map[uint64]*chainEntry
}

// New builds a Pool over the given chain configs.
func New(chains []domain.ChainConfig, log *logger.Logger) *Pool {
	byID := make(map[uint64]domain.ChainConfig, len(chains))
	for _, c := range chains {
		byID[c.ChainID] = c
	}
	return &Pool{
		chains:  byID,
		log:     log.Named("chainpool"),
		entries: make(map[uint64]*chainEntry),
	}
}

func (p *Pool) entryFor(chainID uint64) (*chainEntry, domain.ChainConfig, error) {
	cfg, ok := p.chains[chainID]
	if !ok {
		return nil, domain.ChainConfig{}, fmt.Errorf("chainpool: unknown chain %d", chainID)
	}

	p.mu.Lock()
	e, ok := p.entries[chainID]
	if !ok {
		e = &chainEntry{}
		p.entries[chainID] = e
	}
	p.mu.Unlock()

	return e, cfg, nil
}

// GetClient returns the cached HTTP client for chain, dialing lazily.
func (p *Pool) GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error) {
	e, cfg, err := p.entryFor(chainID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.http != nil {
		return e.http, nil
	}

	c, err := evmclient.Dial(ctx, chainID, cfg.RPCURL, evmclient.KindHTTP, p.log)
	if err != nil {
		return nil, err
	}
	e.http = c
	return c, nil
}

// GetRealtimeClient returns a WS client when one is configured and not in
// cooldown, else falls back to the HTTP client.
func (p *Pool) GetRealtimeClient(ctx context.Context, chainID uint64) (RealtimeClient, error) {
	e, cfg, err := p.entryFor(chainID)
	if err != nil {
		return RealtimeClient{}, err
	}

	if cfg.WSURL == "" {
		httpClient, err := p.GetClient(ctx, chainID)
		if err != nil {
			return RealtimeClient{}, err
		}
		return RealtimeClient{Client: httpClient, Kind: evmclient.KindHTTP}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().Before(e.wsCoolUntil) {
		httpClient, err := p.getClientLocked(ctx, chainID, e, cfg)
		if err != nil {
			return RealtimeClient{}, err
		}
		return RealtimeClient{Client: httpClient, Kind: evmclient.KindHTTP}, nil
	}

	if e.ws != nil {
		return RealtimeClient{Client: e.ws, Kind: evmclient.KindWS}, nil
	}

	c, err := evmclient.Dial(ctx, chainID, cfg.WSURL, evmclient.KindWS, p.log)
	if err != nil {
		// WS dial failed: degrade to HTTP rather than surfacing, per
		// spec.md §4.A ("read errors are not the pool's concern" — but a
		// dial failure at construction must still yield a usable client).
		httpClient, httpErr := p.getClientLocked(ctx, chainID, e, cfg)
		if httpErr != nil {
			return RealtimeClient{}, fmt.Errorf("ws dial failed (%v) and http fallback failed: %w", err, httpErr)
		}
		return RealtimeClient{Client: httpClient, Kind: evmclient.KindHTTP}, nil
	}
	e.ws = c
	return RealtimeClient{Client: c, Kind: evmclient.KindWS}, nil
}

func (p *Pool) getClientLocked(ctx context.Context, chainID uint64, e *chainEntry, cfg domain.ChainConfig) (*evmclient.Client, error) {
	if e.http != nil {
		return e.http, nil
	}
	c, err := evmclient.Dial(ctx, chainID, cfg.RPCURL, evmclient.KindHTTP, p.log)
	if err != nil {
		return nil, err
	}
	e.http = c
	return c, nil
}

// reportWSClosed evicts the WS client for chain after a "closed" error, per
// spec.md §4.A; the next GetRealtimeClient call re-dials.
func (p *Pool) reportWSClosed(chainID uint64) {
	p.mu.Lock()
	e, ok := p.entries[chainID]
	p.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ws != nil {
		e.ws.Close()
		e.ws = nil
	}
}

// ReportWSClosed is the exported form of reportWSClosed.
func (p *Pool) ReportWSClosed(chainID uint64) {
	p.reportWSClosed(chainID)
}

// CooldownWS disables WebSocket for chain for the given duration; during
// cooldown GetRealtimeClient returns the HTTP client instead.
func (p *Pool) CooldownWS(chainID uint64, d time.Duration) {
	p.mu.Lock()
	e, ok := p.entries[chainID]
	if !ok {
		e = &chainEntry{}
		p.entries[chainID] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.wsCoolUntil = time.Now().Add(d)
	if e.ws != nil {
		e.ws.Close()
		e.ws = nil
	}
}

// Close releases every cached client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.mu.Lock()
		if e.http != nil {
			e.http.Close()
		}
		if e.ws != nil {
			e.ws.Close()
		}
		e.mu.Unlock()
	}
}
