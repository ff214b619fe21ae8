package domain

import "time"

// AttemptStatus is the closed set of terminal/intermediate states an
// AttemptRow can carry, per spec.md §3 and §4.F/§4.I.
type AttemptStatus string

const (
	StatusThrottled  AttemptStatus = "throttled"
	StatusGapSkip    AttemptStatus = "gap_skip"
	StatusPolicySkip AttemptStatus = "policy_skip"
	StatusDryRun     AttemptStatus = "dry_run"
	StatusSent       AttemptStatus = "sent"
	StatusSuccess    AttemptStatus = "success"
	StatusError      AttemptStatus = "error"
)

// AttemptRow is the append-only record of one scored/executed candidate,
// persisted to the `liquidation_attempts` table (spec.md §6).
type AttemptRow struct {
	ID        int64
	ChainID   uint64
	Borrower  string
	Status    AttemptStatus
	Reason    string
	TxHash    string
	Details   AttemptDetails
	CreatedAt time.Time
}

// AttemptDetails is the versioned, tagged-kind payload spec.md §9 calls for
// in place of the source's untyped `details: any` blob. Kind selects which
// of the optional fields is populated; unused fields are omitted from JSON.
type AttemptDetails struct {
	Kind string `json:"kind"`

	Plan      *PlanDetails      `json:"plan,omitempty"`
	Rejection *RejectionDetails `json:"rejection,omitempty"`
	Execution *ExecutionDetails `json:"execution,omitempty"`
}

// PlanDetails snapshots the Plan that produced an attempt, as decimal
// strings so big.Int amounts round-trip losslessly through JSONB.
type PlanDetails struct {
	DebtSymbol       string  `json:"debtSymbol"`
	CollateralSymbol string  `json:"collateralSymbol"`
	RepayAmount      string  `json:"repayAmount"`
	SeizeAmount      string  `json:"seizeAmount"`
	RepayUSD         float64 `json:"repayUsd"`
	NetUSD           float64 `json:"netUsd"`
	EstNetBps        int64   `json:"estNetBps"`
	GasUSD           float64 `json:"gasUsd"`
	Mode             string  `json:"mode"`
	RouteDexID       string  `json:"routeDexId"`
}

// RejectionDetails records a policy-gate rejection.
type RejectionDetails struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// ExecutionDetails records an executor outcome.
type ExecutionDetails struct {
	TxHash     string `json:"txHash,omitempty"`
	Mode       string `json:"mode"`
	ErrorClass string `json:"errorClass,omitempty"`
}
