// Package routes implements spec.md §4.D: a pure, side-effect-free
// enumeration of candidate DEX routes for one (chain, debt, collateral)
// pair. It performs no I/O — callers quote the returned options elsewhere
// (internal/oracle, internal/simulator).
package routes

import "github.com/dimajoyti/aave-sentinel/internal/domain"

// DefaultUniV3FeeTiers are the fee tiers enumerated for every UniV3-form
// router, in hundredths of a bip (Uniswap's own fee unit).
var DefaultUniV3FeeTiers = []uint32{100, 500, 3000, 10000}

// DefaultGapFee is the fee tier used for the oracle/DEX gap comparison when
// the chain config doesn't name one explicitly.
const DefaultGapFee = 500

// Result is the Route Builder's output for one (chain, debtSym, collSym)
// query.
type Result struct {
	Options   []domain.RouteOption
	GapFee    uint32
	GapRouter string
}

// Build enumerates every route option configured for chain, independent of
// the specific debt/collateral symbols (Aave v3 markets route through the
// same router set regardless of asset pair; per-asset differences are
// handled by the caller skipping unquotable routes).
func Build(chain domain.ChainConfig) Result {
	var options []domain.RouteOption
	var gapRouter string

	if chain.UniV3Router != "" {
		for _, fee := range DefaultUniV3FeeTiers {
			options = append(options, domain.RouteOption{
				Kind:   domain.RouteUniV3,
				Router: chain.UniV3Router,
				Fee:    fee,
			})
			if gapRouter == "" {
				gapRouter = chain.UniV3Router
			}
		}
	}

	for _, router := range chain.UniV2Routers {
		options = append(options, domain.RouteOption{
			Kind:   domain.RouteUniV2,
			Router: router,
		})
	}

	for _, r := range chain.SolidlyRouters {
		for _, stable := range []bool{true, false} {
			options = append(options, domain.RouteOption{
				Kind:    domain.RouteSolidly,
				Router:  r.Router,
				Factory: r.Factory,
				Stable:  stable,
			})
		}
	}

	return Result{
		Options:   options,
		GapFee:    DefaultGapFee,
		GapRouter: gapRouter,
	}
}
