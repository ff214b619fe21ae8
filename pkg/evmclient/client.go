// Package evmclient wraps go-ethereum's ethclient.Client with the thin
// convenience surface the rest of this module needs (balance, nonce, gas
// price, gas estimation, call, send, receipts), generalized from the
// teacher's pkg/blockchain/ethereum.go (which held one client per process)
// into a reusable per-chain client the chain client pool multiplexes.
package evmclient

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// Kind distinguishes the transport a Client was dialed with.
type Kind string

const (
	KindHTTP Kind = "http"
	KindWS   Kind = "ws"
)

// Client is a dialed EVM RPC endpoint for one chain.
type Client struct {
	raw     *ethclient.Client
	chainID uint64
	kind    Kind
	url     string
	logger  *logger.Logger
}

// Dial connects to url and wraps it as a Client for chainID.
func Dial(ctx context.Context, chainID uint64, url string, kind Kind, log *logger.Logger) (*Client, error) {
	raw, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s (%s): %w", url, kind, err)
	}
	return &Client{
		raw:     raw,
		chainID: chainID,
		kind:    kind,
		url:     url,
		logger:  log.ForChain(chainID),
	}, nil
}

// Kind reports whether this client is HTTP or WS.
func (c *Client) Kind() Kind { return c.kind }

// Raw exposes the underlying *ethclient.Client for callers that need the
// full go-ethereum surface (event subscriptions, bound contracts).
func (c *Client) Raw() *ethclient.Client { return c.raw }

// BalanceAt returns the native balance of address.
func (c *Client) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	bal, err := c.raw.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("balance at %s: %w", address, err)
	}
	return bal, nil
}

// NonceAt returns the pending nonce of address.
func (c *Client) NonceAt(ctx context.Context, address string) (uint64, error) {
	nonce, err := c.raw.PendingNonceAt(ctx, common.HexToAddress(address))
	if err != nil {
		return 0, fmt.Errorf("nonce at %s: %w", address, err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the legacy suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	gp, err := c.raw.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return gp, nil
}

// SuggestGasTipCap returns the EIP-1559 priority fee suggestion.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.raw.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	return tip, nil
}

// EstimateGas estimates gas units for a pending call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.raw.EstimateGas(ctx, msg)
	if err != nil {
		return 0, err // deliberately unwrapped: callers classify revert reasons
	}
	return gas, nil
}

// CallContract performs an eth_call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	out, err := c.raw.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.raw.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	return nil
}

// TransactionReceipt retrieves the receipt for hash.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.raw.TransactionReceipt(ctx, hash)
}

// SubscribeFilterLogs subscribes to a log filter over WS; callers must check
// Kind() == KindWS before relying on push semantics.
func (c *Client) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.raw.SubscribeFilterLogs(ctx, q, ch)
}

// FilterLogs performs a one-shot HTTP log query.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.raw.FilterLogs(ctx, q)
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.raw.Close()
}
