// Package executor implements spec.md §4.I: turning one approved Plan into
// at-most-one signed, submitted transaction.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/dimajoyti/aave-sentinel/internal/chainpool"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/internal/xerrors"
	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
	"github.com/dimajoyti/aave-sentinel/pkg/redis"
)

// gasUnitsBuffer pads the fresh pre-send gas estimate so a transaction
// doesn't fail from a gas-price bump between estimation and inclusion.
const gasUnitsBuffer = 120 // percent

// Executor turns one Plan into at-most-one signed transaction per
// spec.md §4.I.
type Executor struct {
	clients     *chainpool.Pool
	oracleCache *oracle.Cache
	nonceLock   *NonceLock
	signer      *Signer
	balances    *balanceCache
	log         *logger.Logger

	failures *failureTracker

	privateClients chainClientCache
}

// chainClientCache dials and caches one private-submission client per
// chain, parallel to chainpool.Pool's public-RPC caching.
type chainClientCache struct {
	mu sync.Mutex
	m  map[uint64]*evmclient.Client
}

// New builds an Executor. redisClient may be nil, pinning the nonce lock to
// its in-memory fallback. alertFn is invoked (at most once per 15-minute
// cooldown) when the fail-rate threshold trips; it may be nil.
func New(clients *chainpool.Pool, oracleCache *oracle.Cache, redisClient redis.Client, signer *Signer, log *logger.Logger, alertFn func(string)) *Executor {
	return &Executor{
		clients:        clients,
		oracleCache:    oracleCache,
		nonceLock:      NewNonceLock(redisClient, log),
		signer:         signer,
		balances:       newBalanceCache(),
		log:            log.Named("executor"),
		failures:       newFailureTracker(alertFn),
		privateClients: chainClientCache{m: make(map[uint64]*evmclient.Client)},
	}
}

// Result is the outcome of one Execute call, shaped to feed straight into
// domain.ExecutionDetails for the attempt row.
type Result struct {
	TxHash     string
	Mode       domain.ExecutionMode
	ErrorClass string
}

// Execute runs spec.md §4.I's full sequence: mode selection, sequencer
// re-check, call build, gas estimate, submission, and nonce-lock-guarded
// send.
func (e *Executor) Execute(ctx context.Context, plan *domain.Plan, chain domain.ChainConfig, risk domain.RiskConfig) (*Result, error) {
	client, err := e.clients.GetClient(ctx, chain.ChainID)
	if err != nil {
		return nil, err
	}

	mode := plan.Mode
	if mode == "" {
		mode = domain.ModeFlash
	}
	if chain.InventoryModeEnabled && chain.ExecutorContract != "" {
		bal, err := e.balances.balanceOf(ctx, client, chain.ChainID, plan.DebtAsset.Address, chain.ExecutorContract)
		if err != nil {
			e.log.Warn("inventory balance check failed, defaulting to flash mode", "error", err)
			mode = domain.ModeFlash
		} else if bal.Cmp(plan.RepayAmount) >= 0 {
			mode = domain.ModeFunds
		} else {
			mode = domain.ModeFlash
		}
	}

	grace := time.Duration(risk.SequencerGraceSecs) * time.Second
	stale := time.Duration(risk.SequencerStaleSecs) * time.Second
	if grace == 0 {
		grace = time.Hour
	}
	if stale == 0 {
		stale = 25 * time.Hour
	}
	seqOK, err := e.oracleCache.SequencerOK(ctx, chain, grace, stale)
	if err != nil {
		return nil, err
	}
	if !seqOK {
		return nil, xerrors.New(xerrors.KindSequencerDown, "pre_send")
	}

	calldata, err := e.buildCalldata(mode, plan, chain)
	if err != nil {
		return nil, err
	}

	sendClient, sendPrivately := client, false
	if chain.PrivateSubmissionURL != "" {
		pc, err := e.privateClient(ctx, chain)
		if err != nil {
			e.log.Warn("private submission client unavailable, falling back to public RPC", "error", err)
		} else {
			sendClient, sendPrivately = pc, true
		}
	}

	contractAddr := common.HexToAddress(chain.ExecutorContract)
	gasLimit, err := sendClient.EstimateGas(ctx, ethereum.CallMsg{
		From: e.signer.Address(),
		To:   &contractAddr,
		Data: calldata,
	})
	if err != nil {
		res, rerr := e.classifyFailure(err, mode)
		e.failures.CheckAlert(risk.FailRateCap)
		return res, rerr
	}
	gasLimit = gasLimit * gasUnitsBuffer / 100

	unlock, err := e.nonceLock.Lock(ctx, chain.ChainID, e.signer.Address().Hex())
	if err != nil {
		return nil, fmt.Errorf("executor: acquire nonce lock: %w", err)
	}
	defer unlock()

	nonce, err := sendClient.NonceAt(ctx, e.signer.Address().Hex())
	if err != nil {
		return nil, err
	}
	gasTipCap, err := sendClient.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, err
	}
	gasFeeCap, err := sendClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chain.ChainID),
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &contractAddr,
		Data:      calldata,
	})
	signedTx, err := e.signer.SignTx(tx, new(big.Int).SetUint64(chain.ChainID))
	if err != nil {
		return nil, err
	}

	if err := sendClient.SendTransaction(ctx, signedTx); err != nil {
		res, rerr := e.classifyFailure(err, mode)
		e.failures.CheckAlert(risk.FailRateCap)
		return res, rerr
	}

	e.failures.recordSuccess()
	e.log.Info("submitted liquidation", "txHash", signedTx.Hash().Hex(), "mode", mode, "private", sendPrivately)
	return &Result{TxHash: signedTx.Hash().Hex(), Mode: mode}, nil
}

// planTuple mirrors the Plan struct components in the liquidator ABI
// verbatim (field order and names both matter for tuple packing).
type planTuple struct {
	Borrower        common.Address
	DebtAsset       common.Address
	CollateralAsset common.Address
	RepayAmount     *big.Int
	DexId           uint8
	Router          common.Address
	UniFee          *big.Int
	SolidlyStable   bool
	SolidlyFactory  common.Address
	MinProfit       *big.Int
	AmountOutMin    *big.Int
	Deadline        *big.Int
	Path            []byte
}

func (e *Executor) buildCalldata(mode domain.ExecutionMode, plan *domain.Plan, chain domain.ChainConfig) ([]byte, error) {
	method := "liquidateWithFlash"
	if mode == domain.ModeFunds {
		method = "liquidateWithFunds"
	}
	amountOutMin := plan.AmountOutMin
	if amountOutMin == nil {
		amountOutMin = big.NewInt(0)
	}
	minProfit := plan.MinProfit
	if minProfit == nil {
		minProfit = big.NewInt(0)
	}

	solidlyFactory := common.Address{}
	if plan.Route.Factory != "" {
		solidlyFactory = common.HexToAddress(plan.Route.Factory)
	}

	plan2 := planTuple{
		Borrower:        common.HexToAddress(plan.Borrower),
		DebtAsset:       common.HexToAddress(plan.DebtAsset.Address),
		CollateralAsset: common.HexToAddress(plan.CollAsset.Address),
		RepayAmount:     plan.RepayAmount,
		DexId:           uint8(dexIDFor(plan.Route.Kind)),
		Router:          common.HexToAddress(plan.Route.Router),
		UniFee:          big.NewInt(int64(plan.Route.Fee)),
		SolidlyStable:   plan.Route.Stable,
		SolidlyFactory:  solidlyFactory,
		MinProfit:       minProfit,
		AmountOutMin:    amountOutMin,
		Deadline:        big.NewInt(plan.Deadline.Unix()),
		Path:            encodeSingleHopPath(plan.CollAsset.Address, plan.DebtAsset.Address, plan.Route.Fee),
	}
	return liquidatorABI.Pack(method, plan2)
}

// encodeSingleHopPath builds the UniV3-style packed path (tokenIn, fee,
// tokenOut) the liquidator contract's swap leg expects; multi-hop routes
// are out of scope for the single-hop RouteOption this tree produces.
func encodeSingleHopPath(tokenIn, tokenOut string, fee uint32) []byte {
	path := make([]byte, 0, 20+3+20)
	path = append(path, common.HexToAddress(tokenIn).Bytes()...)
	path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
	path = append(path, common.HexToAddress(tokenOut).Bytes()...)
	return path
}

func (e *Executor) privateClient(ctx context.Context, chain domain.ChainConfig) (*evmclient.Client, error) {
	e.privateClients.mu.Lock()
	defer e.privateClients.mu.Unlock()

	if c, ok := e.privateClients.m[chain.ChainID]; ok {
		return c, nil
	}
	c, err := evmclient.Dial(ctx, chain.ChainID, chain.PrivateSubmissionURL, evmclient.KindHTTP, e.log)
	if err != nil {
		return nil, err
	}
	e.privateClients.m[chain.ChainID] = c
	return c, nil
}

// classifyFailure implements spec.md §4.I's failure classification:
// HealthFactorNotBelowThreshold reverts demote to a policy skip instead of
// a hard error; everything else counts against the fail-rate tracker.
func (e *Executor) classifyFailure(err error, mode domain.ExecutionMode) (*Result, error) {
	msg := err.Error()
	if containsSelector(msg, xerrors.HealthFactorNotBelowThresholdSelector) {
		return &Result{Mode: mode, ErrorClass: "hf-recovered"}, nil
	}
	e.failures.recordFailure()
	return &Result{Mode: mode, ErrorClass: "error"}, err
}

func containsSelector(msg, selector string) bool {
	for i := 0; i+len(selector) <= len(msg); i++ {
		if msg[i:i+len(selector)] == selector {
			return true
		}
	}
	return false
}
