package domain

import (
	"math/big"
	"time"
)

// ExecutionMode selects how a Plan's repay leg is financed.
type ExecutionMode string

const (
	ModeFlash ExecutionMode = "flash"
	ModeFunds ExecutionMode = "funds"
)

// PlanDeadline is how far into the future a Plan's on-chain deadline is set,
// per spec.md §3 ("deadline = now+300s").
const PlanDeadline = 300 * time.Second

// Plan is a fully simulated, route-selected liquidation ready for scoring
// and (if it survives) execution.
type Plan struct {
	Borrower      string
	ChainID       uint64
	DebtAsset     TokenAmount
	CollAsset     TokenAmount
	RepayAmount   *big.Int
	SeizeAmount   *big.Int
	RepayUSD      float64
	Route         RouteOption
	AmountOutMin  *big.Int
	GasUSD        float64
	EstNetBps     int64
	NetUSD        float64
	MinProfit     *big.Int
	Mode          ExecutionMode
	Precommit     bool // always false; see spec.md §9 — semantics unconfirmed
	Deadline      time.Time
}

// PnlPerGas returns netUSD/gasUSD, +Inf when gasUSD is zero, matching
// spec.md §4.F's pnl/gas floor gate.
func (p Plan) PnlPerGas() float64 {
	if p.GasUSD == 0 {
		return InfiniteHealthFactor
	}
	return p.NetUSD / p.GasUSD
}
