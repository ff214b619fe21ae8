// Package policy implements spec.md §4.F: the ordered gate chain that turns
// a candidate into either a scored Plan or a tagged Rejection. Each gate
// runs in sequence; the first one that fails short-circuits the rest.
package policy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/chainpool"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/internal/routes"
	"github.com/dimajoyti/aave-sentinel/internal/simulator"
	"github.com/dimajoyti/aave-sentinel/internal/xerrors"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// DefaultSequencerGrace and DefaultSequencerStale are the fallback grace/
// staleness windows used when a chain's risk config leaves them at zero.
const (
	DefaultSequencerGrace = 1 * time.Hour
	DefaultSequencerStale = 25 * time.Hour
)

// Input bundles everything Evaluate needs for one candidate.
type Input struct {
	Candidate domain.Candidate
	Chain     domain.ChainConfig
	Market    domain.Market
	Policy    domain.AssetPolicy
	HasPolicy bool
	Risk      domain.RiskConfig
	Adaptive  domain.AdaptiveResult
	CallCtx   simulator.CallContext
}

// Gate evaluates candidates into Plans or Rejections, per spec.md §4.F.
type Gate struct {
	oracleCache *oracle.Cache
	clients     *chainpool.Pool
	simulator   *simulator.Simulator
	log         *logger.Logger
}

// New builds a Gate.
func New(oracleCache *oracle.Cache, clients *chainpool.Pool, sim *simulator.Simulator, log *logger.Logger) *Gate {
	return &Gate{oracleCache: oracleCache, clients: clients, simulator: sim, log: log.Named("policy")}
}

// Evaluate runs the nine ordered gates of spec.md §4.F. Exactly one of
// (plan, rejection, err) is non-nil/non-empty on return.
func (g *Gate) Evaluate(ctx context.Context, in Input) (*domain.Plan, *Rejection, error) {
	// 1. Chain enabled, candidate.chainId == chain.id.
	if in.Candidate.ChainID != in.Chain.ChainID || !in.Chain.Enabled {
		return nil, &Rejection{Reason: ReasonMissingMarket, Detail: "chain disabled or mismatched"}, nil
	}

	// 2. Market enabled.
	if !in.Market.Enabled {
		return nil, &Rejection{Reason: ReasonMissingMarket, Detail: "market disabled"}, nil
	}

	// 3. Debt asset not in denyAssets.
	if in.Risk.DenyAssets[in.Candidate.Debt.Symbol] {
		return nil, &Rejection{Reason: ReasonAssetDenylist, Detail: in.Candidate.Debt.Symbol}, nil
	}

	// 4. AssetPolicy present.
	if !in.HasPolicy || !in.Policy.Valid() {
		return nil, &Rejection{Reason: ReasonMissingPolicy}, nil
	}

	debtToken, ok := in.Chain.Tokens[in.Market.DebtSymbol]
	if !ok {
		return nil, &Rejection{Reason: ReasonMissingToken, Detail: in.Market.DebtSymbol}, nil
	}
	collToken, ok := in.Chain.Tokens[in.Market.CollateralSymbol]
	if !ok {
		return nil, &Rejection{Reason: ReasonMissingToken, Detail: in.Market.CollateralSymbol}, nil
	}

	// 5. Sequencer status ok (stage=pre_sim).
	grace, stale := sequencerWindows(in.Risk)
	seqOK, err := g.oracleCache.SequencerOK(ctx, in.Chain, grace, stale)
	if err != nil {
		return nil, nil, err
	}
	if !seqOK {
		return nil, &Rejection{Reason: ReasonSequencerDown, Detail: "pre_sim"}, nil
	}

	// 6. Compute prices; compute oracle↔DEX gap; reject if gap > gapCapBps.
	built := routes.Build(in.Chain)
	gapBps, err := g.oracleCache.OracleDexGapBps(ctx, in.Chain, collToken, debtToken, built.GapFee, built.GapRouter)
	if err != nil {
		return nil, nil, err
	}
	if gapBps > int(in.Adaptive.GapCapBps) {
		return nil, &Rejection{Reason: ReasonGapExceedsCap, Detail: fmt.Sprintf("%d>%d", gapBps, in.Adaptive.GapCapBps), Snapshot: map[string]interface{}{"gapBps": gapBps}}, nil
	}

	// 7. Fetch borrower HF via pool getUserAccountData; reject if not
	// finite, <= 0, or >= adaptivePolicy.healthFactorMax.
	client, err := g.clients.GetClient(ctx, in.Chain.ChainID)
	if err != nil {
		return nil, nil, err
	}
	hf, err := liveHealthFactor(ctx, client, in.Chain.PoolAddressesProvider, in.Candidate.Borrower)
	if err != nil {
		return nil, nil, err
	}
	if math.IsInf(hf, 1) || hf <= 0 || hf >= in.Adaptive.HealthFactorMax {
		return nil, &Rejection{Reason: ReasonHealthFactorAboveMax, Snapshot: map[string]interface{}{"healthFactor": hf}}, nil
	}

	// 8. Invoke Simulator; reject if None.
	plan, err := g.simulator.Simulate(ctx, simulator.Input{
		Candidate: in.Candidate,
		Chain:     in.Chain,
		Market:    in.Market.WithDefaults(),
		Policy:    in.Policy,
		DebtToken: debtToken,
		CollToken: collToken,
		Routes:    built.Options,
		MaxRepayUSD: in.Risk.MaxRepayUSD,
		GasCapUSD: in.Risk.GasCapUSD,
		CallCtx:   in.CallCtx,
	})
	if err != nil {
		if xe, ok := xerrors.AsError(err); ok {
			switch xe.Kind {
			case xerrors.KindContractRevert:
				return nil, &Rejection{Reason: ReasonContractRevert, Detail: xe.Detail}, nil
			case xerrors.KindPolicyReject:
				return nil, &Rejection{Reason: ReasonMinProfitZero, Detail: xe.Detail}, nil
			}
		}
		return nil, nil, err
	}
	if plan == nil {
		return nil, &Rejection{Reason: ReasonPlanNull}, nil
	}

	// 9. Validate plan.pnlPerGas >= pnlPerGasMin.
	if plan.PnlPerGas() < in.Risk.PnlPerGasMin {
		return nil, &Rejection{Reason: ReasonPlanPnlPerGas, Snapshot: map[string]interface{}{"pnlPerGas": plan.PnlPerGas()}}, nil
	}

	return plan, nil, nil
}

func sequencerWindows(risk domain.RiskConfig) (time.Duration, time.Duration) {
	grace := DefaultSequencerGrace
	stale := DefaultSequencerStale
	if risk.SequencerGraceSecs > 0 {
		grace = time.Duration(risk.SequencerGraceSecs) * time.Second
	}
	if risk.SequencerStaleSecs > 0 {
		stale = time.Duration(risk.SequencerStaleSecs) * time.Second
	}
	return grace, stale
}
