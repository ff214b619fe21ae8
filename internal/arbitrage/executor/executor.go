// Package executor implements spec.md §4.K's Fabric Executor: turning one
// accepted QuoteEdge into a single UniV3 SwapRouter exactInput call over the
// round trip's encoded multi-hop path, reusing the liquidation executor's
// signer and nonce-lock primitives.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	liqexecutor "github.com/dimajoyti/aave-sentinel/internal/executor"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// swapDeadline bounds how long after signing the swap stays valid on-chain.
const swapDeadline = 2 * time.Minute

// gasUnitsBuffer mirrors internal/executor's pad on the pre-send gas estimate.
const gasUnitsBuffer = 120 // percent

// ClientSource is the subset of chainpool.Pool the fabric executor depends on.
type ClientSource interface {
	GetClient(ctx context.Context, chainID uint64) (*evmclient.Client, error)
}

// Inventory is the subset of inventory.Manager the executor consults before
// spending a trade's input token, per spec.md §4.K's Inventory Manager.
type Inventory interface {
	CheckCoverage(ctx context.Context, chainID uint64, token domain.TokenInfo, holder string, amountFloat float64) (bool, error)
}

// Result is the outcome of one Execute call.
type Result struct {
	TxHash string
	Stage  string // "approve" | "swap" | "skipped"
}

// Executor turns one QuoteEdge into at-most-one signed transaction: either a
// one-shot MAX approval (if the router's current allowance is short) or the
// exactInput swap itself, never both in the same call.
type Executor struct {
	clients   ClientSource
	signer    *liqexecutor.Signer
	nonceLock *liqexecutor.NonceLock
	inventory Inventory
	log       *logger.Logger
}

// New builds a fabric Executor.
func New(clients ClientSource, signer *liqexecutor.Signer, nonceLock *liqexecutor.NonceLock, inventory Inventory, log *logger.Logger) *Executor {
	return &Executor{
		clients:   clients,
		signer:    signer,
		nonceLock: nonceLock,
		inventory: inventory,
		log:       log.Named("arbitrage.executor"),
	}
}

// Execute submits edge against pair's venues on chain. slippageBps is
// applied to the round trip's expected output (the buy leg's quoted
// AmountOut, in base units) to derive the exactInput call's amountOutMinimum.
func (e *Executor) Execute(ctx context.Context, chain domain.ChainConfig, pair domain.ResolvedPair, edge domain.QuoteEdge, slippageBps uint32) (*Result, error) {
	if len(edge.Legs) != 2 {
		return nil, fmt.Errorf("arbitrage executor: expected a 2-leg round trip, got %d", len(edge.Legs))
	}
	sellFee, ok := venueFee(pair, edge.Legs[0].Venue)
	if !ok {
		return nil, fmt.Errorf("arbitrage executor: unknown sell venue %q", edge.Legs[0].Venue)
	}
	buyFee, ok := venueFee(pair, edge.Legs[1].Venue)
	if !ok {
		return nil, fmt.Errorf("arbitrage executor: unknown buy venue %q", edge.Legs[1].Venue)
	}
	if chain.UniV3Router == "" {
		return nil, fmt.Errorf("arbitrage executor: chain %d has no uniV3Router configured", chain.ChainID)
	}

	client, err := e.clients.GetClient(ctx, chain.ChainID)
	if err != nil {
		return nil, err
	}

	ok, err = e.inventory.CheckCoverage(ctx, chain.ChainID, pair.Base, e.signer.Address().Hex(), edge.SizeIn)
	if err != nil {
		e.log.Warn("arbitrage inventory check failed, proceeding without coverage guarantee", "pairId", pair.PairID, "error", err)
	} else if !ok {
		return &Result{Stage: "skipped"}, nil
	}

	amountIn := domain.FromFloat(edge.SizeIn, pair.Base.Decimals)

	needsApproval, err := e.allowanceShort(ctx, client, pair.Base.Address, chain.UniV3Router, amountIn)
	if err != nil {
		return nil, err
	}
	if needsApproval {
		return e.sendApproval(ctx, client, chain, pair.Base.Address)
	}
	return e.sendSwap(ctx, client, chain, pair, edge, sellFee, buyFee, amountIn, slippageBps)
}

func venueFee(pair domain.ResolvedPair, venueName string) (uint32, bool) {
	for _, v := range pair.Venues {
		if v.Name == venueName {
			return v.Fee, true
		}
	}
	return 0, false
}

func (e *Executor) allowanceShort(ctx context.Context, client *evmclient.Client, token, spender string, required *big.Int) (bool, error) {
	calldata, err := erc20ABI.Pack("allowance", e.signer.Address(), common.HexToAddress(spender))
	if err != nil {
		return false, err
	}
	tokenAddr := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: calldata})
	if err != nil {
		return false, fmt.Errorf("arbitrage executor: allowance: %w", err)
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(vals) != 1 {
		return false, fmt.Errorf("arbitrage executor: unpack allowance: %w", err)
	}
	current, ok := vals[0].(*big.Int)
	if !ok {
		return false, fmt.Errorf("arbitrage executor: unexpected allowance type")
	}
	return current.Cmp(required) < 0, nil
}

func (e *Executor) sendApproval(ctx context.Context, client *evmclient.Client, chain domain.ChainConfig, token string) (*Result, error) {
	calldata, err := erc20ABI.Pack("approve", common.HexToAddress(chain.UniV3Router), maxUint256)
	if err != nil {
		return nil, err
	}
	tokenAddr := common.HexToAddress(token)
	txHash, err := e.sendTx(ctx, client, chain, &tokenAddr, calldata)
	if err != nil {
		return nil, err
	}
	return &Result{TxHash: txHash, Stage: "approve"}, nil
}

func (e *Executor) sendSwap(ctx context.Context, client *evmclient.Client, chain domain.ChainConfig, pair domain.ResolvedPair, edge domain.QuoteEdge, sellFee, buyFee uint32, amountIn *big.Int, slippageBps uint32) (*Result, error) {
	path := encodeMultiHopPath(pair.Base.Address, sellFee, pair.Quote.Address, buyFee, pair.Base.Address)

	expectedOut := domain.FromFloat(edge.Legs[1].AmountOut, pair.Base.Decimals)
	amountOutMin := applySlippage(expectedOut, slippageBps)

	routerAddr := common.HexToAddress(chain.UniV3Router)
	calldata, err := swapRouterABI.Pack("exactInput", struct {
		Path             []byte
		Recipient        common.Address
		Deadline         *big.Int
		AmountIn         *big.Int
		AmountOutMinimum *big.Int
	}{
		Path:             path,
		Recipient:        e.signer.Address(),
		Deadline:         big.NewInt(time.Now().Add(swapDeadline).Unix()),
		AmountIn:         amountIn,
		AmountOutMinimum: amountOutMin,
	})
	if err != nil {
		return nil, err
	}

	txHash, err := e.sendTx(ctx, client, chain, &routerAddr, calldata)
	if err != nil {
		return nil, err
	}
	return &Result{TxHash: txHash, Stage: "swap"}, nil
}

// applySlippage scales expected down by slippageBps/10_000, per spec.md
// §4.K's "applies slippageBps on minAmountOut".
func applySlippage(expected *big.Int, slippageBps uint32) *big.Int {
	if slippageBps == 0 {
		return expected
	}
	num := new(big.Int).Mul(expected, big.NewInt(int64(10_000-slippageBps)))
	return num.Div(num, big.NewInt(10_000))
}

// encodeMultiHopPath builds the packed (token, fee, token, fee, ..., token)
// path UniV3's SwapRouter expects for a multi-hop exactInput call.
func encodeMultiHopPath(parts ...interface{}) []byte {
	path := make([]byte, 0, 20*2+3)
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			path = append(path, common.HexToAddress(v).Bytes()...)
		case uint32:
			path = append(path, byte(v>>16), byte(v>>8), byte(v))
		}
	}
	return path
}

func (e *Executor) sendTx(ctx context.Context, client *evmclient.Client, chain domain.ChainConfig, to *common.Address, calldata []byte) (string, error) {
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{From: e.signer.Address(), To: to, Data: calldata})
	if err != nil {
		return "", fmt.Errorf("arbitrage executor: estimate gas: %w", err)
	}
	gasLimit = gasLimit * gasUnitsBuffer / 100

	unlock, err := e.nonceLock.Lock(ctx, chain.ChainID, e.signer.Address().Hex())
	if err != nil {
		return "", fmt.Errorf("arbitrage executor: acquire nonce lock: %w", err)
	}
	defer unlock()

	nonce, err := client.NonceAt(ctx, e.signer.Address().Hex())
	if err != nil {
		return "", err
	}
	gasTipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return "", err
	}
	gasFeeCap, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chain.ChainID),
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        to,
		Data:      calldata,
	})
	signedTx, err := e.signer.SignTx(tx, new(big.Int).SetUint64(chain.ChainID))
	if err != nil {
		return "", err
	}
	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}
	e.log.Info("submitted arbitrage transaction", "txHash", signedTx.Hash().Hex(), "chainId", chain.ChainID)
	return signedTx.Hash().Hex(), nil
}
