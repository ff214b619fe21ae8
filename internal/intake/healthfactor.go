package intake

import (
	"math"
	"math/big"
)

const (
	// PriceScale is the fixed-point scale the subgraph reports priceInEth
	// at, per spec.md §4.C and §9 (kept as a package constant resolving
	// spec.md §9's open question).
	PriceScale = 100_000_000 // 1e8
	// LiqThresholdScale is the fixed-point scale liquidationThreshold bps
	// are reported at.
	LiqThresholdScale = 10_000
	// HealthFactorScale preserves six fractional digits through the
	// integer division spec.md §4.C calls for.
	HealthFactorScale = 1_000_000
)

// ReserveRow is one (borrower, reserve) row the subgraph returns, already
// decoded from its GraphQL JSON representation.
type ReserveRow struct {
	Borrower             string
	ReserveSymbol        string
	ReserveAddress       string
	Decimals             uint8
	PriceInEth           *big.Int // PriceScale fixed-point
	CurrentTotalDebt     *big.Int // base units, zero for collateral-only rows
	CurrentATokenBalance *big.Int // base units, zero for debt-only rows
	LiquidationThreshold uint32   // LiqThresholdScale fixed-point bps
	UsageAsCollateral    bool
	BorrowCount          int
}

// userAggregate accumulates one borrower's debt and threshold-adjusted
// collateral across every reserve row, both expressed in ETH at
// HealthFactorScale-independent PriceScale units.
type userAggregate struct {
	totalDebtEth          *big.Int
	adjustedCollateralEth *big.Int
	debtRows              []ReserveRow
	collateralRows        []ReserveRow
}

func newUserAggregate() *userAggregate {
	return &userAggregate{
		totalDebtEth:          big.NewInt(0),
		adjustedCollateralEth: big.NewInt(0),
	}
}

// valueInEth converts a base-unit token amount to ETH terms at PriceScale:
// amount * priceInEth / 10^decimals.
func valueInEth(amount *big.Int, priceInEth *big.Int, decimals uint8) *big.Int {
	v := new(big.Int).Mul(amount, priceInEth)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return v.Div(v, divisor)
}

// AggregateByBorrower groups subgraph rows with non-zero borrow count by
// borrower and accumulates their debt/collateral legs.
func AggregateByBorrower(rows []ReserveRow) map[string]*userAggregate {
	byBorrower := make(map[string]*userAggregate)

	for _, row := range rows {
		if row.BorrowCount == 0 {
			continue
		}
		agg, ok := byBorrower[row.Borrower]
		if !ok {
			agg = newUserAggregate()
			byBorrower[row.Borrower] = agg
		}

		if row.CurrentTotalDebt != nil && row.CurrentTotalDebt.Sign() > 0 {
			debtEth := valueInEth(row.CurrentTotalDebt, row.PriceInEth, row.Decimals)
			agg.totalDebtEth.Add(agg.totalDebtEth, debtEth)
			agg.debtRows = append(agg.debtRows, row)
		}
		if row.UsageAsCollateral && row.CurrentATokenBalance != nil && row.CurrentATokenBalance.Sign() > 0 {
			collEth := valueInEth(row.CurrentATokenBalance, row.PriceInEth, row.Decimals)
			adjusted := new(big.Int).Mul(collEth, big.NewInt(int64(row.LiquidationThreshold)))
			adjusted.Div(adjusted, big.NewInt(LiqThresholdScale))
			agg.adjustedCollateralEth.Add(agg.adjustedCollateralEth, adjusted)
			agg.collateralRows = append(agg.collateralRows, row)
		}
	}

	return byBorrower
}

// HealthFactor computes HF = adjustedCollateralEth / totalDebtEth through
// HealthFactorScale integer math, returning +Inf when debt is zero.
func (a *userAggregate) HealthFactor() float64 {
	if a.totalDebtEth.Sign() == 0 {
		return math.Inf(1)
	}
	scaled := new(big.Int).Mul(a.adjustedCollateralEth, big.NewInt(HealthFactorScale))
	scaled.Div(scaled, a.totalDebtEth)
	return float64(scaled.Int64()) / HealthFactorScale
}
