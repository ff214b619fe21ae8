// Package simulator implements spec.md §4.E: given a candidate, route
// options, oracle prices, and call context, computes the repay/seize legs,
// quotes every route concurrently, estimates gas (including the L1 fee
// component on L2 rollups), and selects the most profitable surviving
// route into a Plan.
package simulator

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dimajoyti/aave-sentinel/internal/chainpool"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/internal/xerrors"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// GasUnitsHint is the fallback gas estimate used when EstimateGas cannot be
// obtained, resolving spec.md §9's GAS_UNITS_HINT open question.
const GasUnitsHint = 550_000

// CallContext names the addresses a liquidation call needs beyond the
// candidate itself.
type CallContext struct {
	Contract    string
	Executor    string
	Beneficiary string
}

// Input bundles everything Simulate needs for one candidate.
type Input struct {
	Candidate   domain.Candidate
	Chain       domain.ChainConfig
	Market      domain.Market
	Policy      domain.AssetPolicy
	DebtToken   domain.TokenInfo
	CollToken   domain.TokenInfo
	Routes      []domain.RouteOption
	MaxRepayUSD float64 // 0 means unset
	GasCapUSD   float64
	CallCtx     CallContext
}

// Simulator owns the oracle cache and chain client pool every simulation
// needs to quote routes and estimate gas.
type Simulator struct {
	oracleCache *oracle.Cache
	clients     *chainpool.Pool
	log         *logger.Logger
}

// New builds a Simulator.
func New(oracleCache *oracle.Cache, clients *chainpool.Pool, log *logger.Logger) *Simulator {
	return &Simulator{oracleCache: oracleCache, clients: clients, log: log.Named("simulator")}
}

type quotedRoute struct {
	route        domain.RouteOption
	amountOut    *big.Int
	amountOutMin *big.Int
	gasUSD       float64
	netUSD       float64
	estNetBps    int64
	order        int
}

// Simulate runs spec.md §4.E's algorithm. A nil Plan with a nil error means
// the candidate is no longer liquidatable (HealthFactorNotBelowThreshold);
// a non-nil error is a *xerrors.Error tagged KindContractRevert for any
// other revert.
func (s *Simulator) Simulate(ctx context.Context, in Input) (*domain.Plan, error) {
	collPrice, err := s.oracleCache.PriceUSD(ctx, in.Chain, in.CollToken)
	if err != nil || collPrice.Stale || collPrice.Price <= 0 {
		return nil, nil
	}
	debtPrice, err := s.oracleCache.PriceUSD(ctx, in.Chain, in.DebtToken)
	if err != nil || debtPrice.Stale || debtPrice.Price <= 0 {
		return nil, nil
	}

	cfBps := in.Market.CloseFactorBps
	repay := new(big.Int).Mul(in.Candidate.Debt.Amount, big.NewInt(int64(cfBps)))
	repay.Div(repay, big.NewInt(10_000))

	repayUSD := domain.ToFloat(repay, in.DebtToken.Decimals) * debtPrice.Price
	if in.MaxRepayUSD > 0 && repayUSD > in.MaxRepayUSD {
		capped := new(big.Float).Quo(big.NewFloat(in.MaxRepayUSD/debtPrice.Price), big.NewFloat(1))
		scaled := new(big.Float).Mul(capped, new(big.Float).SetFloat64(pow10(in.DebtToken.Decimals)))
		capInt, _ := scaled.Int(nil)
		repay = capInt
		repayUSD = in.MaxRepayUSD
	}

	bonusBps := in.Market.LiquidationBonusBps
	seizeUSD := repayUSD * (1 + float64(bonusBps)/10_000)
	seizeFloat := new(big.Float).Quo(big.NewFloat(seizeUSD/collPrice.Price), big.NewFloat(1))
	seizeScaled := new(big.Float).Mul(seizeFloat, new(big.Float).SetFloat64(pow10(in.CollToken.Decimals)))
	seizeInt, _ := seizeScaled.Int(nil)
	if seizeInt.Cmp(in.Candidate.Collateral.Amount) > 0 {
		seizeInt = new(big.Int).Set(in.Candidate.Collateral.Amount)
	}

	minProfit := domain.CeilDiv(new(big.Int).Mul(repay, big.NewInt(int64(in.Policy.FloorBps))), big.NewInt(10_000))
	if minProfit.Sign() <= 0 {
		return nil, xerrors.New(xerrors.KindPolicyReject, "min-profit-zero")
	}

	quotes, err := s.quoteRoutes(ctx, in, seizeInt)
	if err != nil {
		return nil, err
	}

	revertErr := s.probeLiquidatable(ctx, in, repay)
	if revertErr != nil {
		if xe, ok := xerrors.AsError(revertErr); ok && xe.Revert == xerrors.RevertHealthFactorRecovered {
			return nil, nil
		}
		return nil, revertErr
	}

	var survivors []quotedRoute
	for _, q := range quotes {
		gasUSD, err := s.estimateGasUSD(ctx, in, repay)
		if err != nil {
			continue
		}
		if gasUSD > in.GasCapUSD && in.GasCapUSD > 0 {
			continue
		}

		proceedsUSD := domain.ToFloat(q.amountOutMin, in.DebtToken.Decimals) * debtPrice.Price
		netUSD := proceedsUSD - repayUSD - gasUSD
		estNetBps := int64(0)
		if repayUSD > 0 {
			estNetBps = int64(math.Round(netUSD / repayUSD * 10_000))
		}
		if estNetBps < int64(in.Policy.FloorBps) {
			continue
		}

		q.gasUSD = gasUSD
		q.netUSD = netUSD
		q.estNetBps = estNetBps
		survivors = append(survivors, q)
	}

	if len(survivors) == 0 {
		return nil, nil
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].netUSD > survivors[j].netUSD
	})
	best := survivors[0]

	return &domain.Plan{
		Borrower:     in.Candidate.Borrower,
		ChainID:      in.Candidate.ChainID,
		DebtAsset:    in.Candidate.Debt,
		CollAsset:    in.Candidate.Collateral,
		RepayAmount:  repay,
		SeizeAmount:  seizeInt,
		RepayUSD:     repayUSD,
		Route:        best.route,
		AmountOutMin: best.amountOutMin,
		GasUSD:       best.gasUSD,
		EstNetBps:    best.estNetBps,
		NetUSD:       best.netUSD,
		MinProfit:    minProfit,
		Mode:         domain.ModeFlash,
		Precommit:    false,
		Deadline:     deadline(),
	}, nil
}

// quoteRoutes quotes every UniV3 route concurrently, selling the seized
// collateral leg (seizeAmount, in CollToken base units) into the debt asset —
// the swap the executor actually performs post-liquidation to repay the
// flash loan.
func (s *Simulator) quoteRoutes(ctx context.Context, in Input, seizeAmount *big.Int) ([]quotedRoute, error) {
	results := make([]quotedRoute, len(in.Routes))
	var wg sync.WaitGroup
	for i, route := range in.Routes {
		wg.Add(1)
		go func(i int, route domain.RouteOption) {
			defer wg.Done()
			if route.Kind != domain.RouteUniV3 {
				return // only UniV3 quoting wired through the oracle quoter today
			}
			amountOut, err := s.oracleCache.QuoteExactInputSingle(ctx, in.Chain.ChainID, in.Chain.UniV3Quoter, in.CollToken.Address, in.DebtToken.Address, route.Fee, seizeAmount)
			if err != nil {
				return
			}
			amountOutMin := domain.ComputeAmountOutMin(amountOut, in.Policy.SlippageBps)
			results[i] = quotedRoute{route: route, amountOut: amountOut, amountOutMin: amountOutMin, order: i}
		}(i, route)
	}
	wg.Wait()

	out := make([]quotedRoute, 0, len(results))
	for _, r := range results {
		if r.amountOut != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// probeLiquidatable attempts an eth_call-backed gas estimate of the raw Aave
// liquidationCall, detecting the HealthFactorNotBelowThreshold revert per
// spec.md §4.E step 7.
func (s *Simulator) probeLiquidatable(ctx context.Context, in Input, repay *big.Int) error {
	client, err := s.clients.GetClient(ctx, in.Chain.ChainID)
	if err != nil {
		return xerrors.Wrap(xerrors.KindTransientRPC, "client unavailable", err)
	}

	data, err := poolABI.Pack("liquidationCall",
		common.HexToAddress(in.CollToken.Address),
		common.HexToAddress(in.DebtToken.Address),
		common.HexToAddress(in.Candidate.Borrower),
		repay,
		false,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.KindConfiguration, "pack liquidationCall", err)
	}

	pool := common.HexToAddress(in.Chain.PoolAddressesProvider)
	from := common.HexToAddress(in.CallCtx.Executor)
	_, err = client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &pool, Data: data})
	if err == nil {
		return nil
	}

	msg := err.Error()
	if containsSelector(msg, xerrors.HealthFactorNotBelowThresholdSelector) || containsSubstr(msg, "HealthFactorNotBelowThreshold") {
		return &xerrors.Error{Kind: xerrors.KindContractRevert, Revert: xerrors.RevertHealthFactorRecovered, Detail: "health factor recovered", Cause: err}
	}
	return &xerrors.Error{Kind: xerrors.KindContractRevert, Revert: xerrors.RevertOther, Detail: "liquidationCall reverted", Cause: err}
}

func containsSelector(msg, selector string) bool {
	return containsSubstr(msg, selector)
}

func containsSubstr(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// estimateGasUSD converts a gas estimate to USD using the first available
// gas-price source plus the chain-specific L1 fee component, per spec.md
// §4.E step 8.
func (s *Simulator) estimateGasUSD(ctx context.Context, in Input, repay *big.Int) (float64, error) {
	client, err := s.clients.GetClient(ctx, in.Chain.ChainID)
	if err != nil {
		return 0, err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, err
	}

	gasUnits := big.NewInt(GasUnitsHint)
	if data, err := poolABI.Pack("liquidationCall",
		common.HexToAddress(in.CollToken.Address), common.HexToAddress(in.DebtToken.Address),
		common.HexToAddress(in.Candidate.Borrower), repay, false); err == nil {
		pool := common.HexToAddress(in.Chain.PoolAddressesProvider)
		msg := ethereum.CallMsg{From: common.HexToAddress(in.CallCtx.Executor), To: &pool, Data: data}
		if est, err := client.EstimateGas(ctx, msg); err == nil && est > 0 {
			gasUnits = new(big.Int).SetUint64(est)
		}
	}
	l2FeeWei := new(big.Int).Mul(gasUnits, gasPrice)

	l1FeeWei, err := s.l1FeeComponent(ctx, in, repay, client)
	if err != nil {
		l1FeeWei = big.NewInt(0)
	}

	totalWei := new(big.Int).Add(l2FeeWei, l1FeeWei)
	nativePrice, err := s.nativePriceUSD(ctx, in)
	if err != nil || nativePrice <= 0 {
		return 0, fmt.Errorf("simulator: no native price available for gas conversion")
	}

	return domain.ToFloat(totalWei, 18) * nativePrice, nil
}

func (s *Simulator) nativePriceUSD(ctx context.Context, in Input) (float64, error) {
	if in.Chain.EthUsdFeedAddress == "" {
		return 0, fmt.Errorf("no eth/usd feed configured")
	}
	res, err := s.oracleCache.PriceUSD(ctx, in.Chain, domain.TokenInfo{FeedAddress: in.Chain.EthUsdFeedAddress})
	if err != nil {
		return 0, err
	}
	return res.Price, nil
}

func (s *Simulator) l1FeeComponent(ctx context.Context, in Input, repay *big.Int, client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}) (*big.Int, error) {
	if in.Chain.L1FeeOracle == "" {
		return big.NewInt(0), nil
	}

	oracleAddr := common.HexToAddress(in.Chain.L1FeeOracle)

	switch in.Chain.L1FeeOracleKind {
	case "op":
		calldata, err := poolABI.Pack("liquidationCall",
			common.HexToAddress(in.CollToken.Address), common.HexToAddress(in.DebtToken.Address),
			common.HexToAddress(in.Candidate.Borrower), repay, false)
		if err != nil {
			return big.NewInt(0), err
		}
		data, err := opL1FeeOracleABI.Pack("getL1Fee", calldata)
		if err != nil {
			return big.NewInt(0), err
		}
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &oracleAddr, Data: data})
		if err != nil {
			return big.NewInt(0), err
		}
		vals, err := opL1FeeOracleABI.Unpack("getL1Fee", out)
		if err != nil || len(vals) == 0 {
			return big.NewInt(0), fmt.Errorf("unpack getL1Fee")
		}
		return vals[0].(*big.Int), nil
	case "arbitrum":
		calldata, err := poolABI.Pack("liquidationCall",
			common.HexToAddress(in.CollToken.Address), common.HexToAddress(in.DebtToken.Address),
			common.HexToAddress(in.Candidate.Borrower), repay, false)
		if err != nil {
			return big.NewInt(0), err
		}
		pool := common.HexToAddress(in.Chain.PoolAddressesProvider)
		data, err := arbGasInfoABI.Pack("gasEstimateL1Component", pool, calldata, false)
		if err != nil {
			return big.NewInt(0), err
		}
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &oracleAddr, Data: data})
		if err != nil {
			return big.NewInt(0), err
		}
		vals, err := arbGasInfoABI.Unpack("gasEstimateL1Component", out)
		if err != nil || len(vals) == 0 {
			return big.NewInt(0), fmt.Errorf("unpack gasEstimateL1Component")
		}
		gasEstimate := vals[0].(uint64)
		baseFee := vals[1].(*big.Int)
		return new(big.Int).Mul(big.NewInt(int64(gasEstimate)), baseFee), nil
	default:
		return big.NewInt(0), nil
	}
}

func pow10(n uint8) float64 {
	v := 1.0
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}

func deadline() time.Time {
	return time.Now().Add(domain.PlanDeadline)
}
