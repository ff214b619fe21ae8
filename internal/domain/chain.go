// Package domain holds the entities shared by every component of the
// liquidation and arbitrage pipeline: chain/market/policy configuration,
// candidates, routes, plans, attempt rows, and the arbitrage edge types.
// Nothing in this package performs I/O; it is the vocabulary every other
// package imports.
package domain

import (
	"math/big"
)

// FeedDenomination is the quote currency a Chainlink feed reports in.
type FeedDenomination string

const (
	DenomUSD FeedDenomination = "usd"
	DenomETH FeedDenomination = "eth"
	DenomBTC FeedDenomination = "btc"
)

// TokenInfo describes one ERC-20 asset on a given chain.
type TokenInfo struct {
	Address          string           `yaml:"address" json:"address"`
	Decimals         uint8            `yaml:"decimals" json:"decimals"`
	FeedAddress      string           `yaml:"feedAddress,omitempty" json:"feedAddress,omitempty"`
	FeedDenomination FeedDenomination `yaml:"feedDenomination,omitempty" json:"feedDenomination,omitempty"`
}

// RiskOverrides lets a specific chain tighten (never loosen) global risk
// settings; nil fields mean "inherit the global RiskConfig value".
type RiskOverrides struct {
	GasCapUSD      *float64 `yaml:"gasCapUsd,omitempty" json:"gasCapUsd,omitempty"`
	PnlPerGasMin   *float64 `yaml:"pnlPerGasMin,omitempty" json:"pnlPerGasMin,omitempty"`
	MaxRepayUSD    *float64 `yaml:"maxRepayUsd,omitempty" json:"maxRepayUsd,omitempty"`
}

// ChainConfig is the immutable-after-load description of one EVM L2.
type ChainConfig struct {
	ChainID                uint64                  `yaml:"chainId" json:"chainId"`
	Name                   string                  `yaml:"name" json:"name"`
	RPCURL                 string                  `yaml:"rpcUrl" json:"rpcUrl"`
	WSURL                  string                  `yaml:"wsUrl,omitempty" json:"wsUrl,omitempty"`
	PrivateSubmissionURL   string                  `yaml:"privateSubmissionUrl,omitempty" json:"privateSubmissionUrl,omitempty"`
	Enabled                bool                    `yaml:"enabled" json:"enabled"`
	SequencerFeedAddress   string                  `yaml:"sequencerFeedAddress,omitempty" json:"sequencerFeedAddress,omitempty"`
	EthUsdFeedAddress      string                  `yaml:"ethUsdFeedAddress,omitempty" json:"ethUsdFeedAddress,omitempty"`
	BtcUsdFeedAddress      string                  `yaml:"btcUsdFeedAddress,omitempty" json:"btcUsdFeedAddress,omitempty"`
	L1FeeOracle            string                  `yaml:"l1FeeOracle,omitempty" json:"l1FeeOracle,omitempty"`
	L1FeeOracleKind        string                  `yaml:"l1FeeOracleKind,omitempty" json:"l1FeeOracleKind,omitempty"`
	PoolAddressesProvider  string                  `yaml:"poolAddressesProvider" json:"poolAddressesProvider"`
	ExecutorContract       string                  `yaml:"executorContract,omitempty" json:"executorContract,omitempty"`
	BeneficiaryAddress     string                  `yaml:"beneficiaryAddress,omitempty" json:"beneficiaryAddress,omitempty"`
	InventoryModeEnabled   bool                    `yaml:"inventoryModeEnabled,omitempty" json:"inventoryModeEnabled,omitempty"`
	UniV3Router            string                  `yaml:"uniV3Router,omitempty" json:"uniV3Router,omitempty"`
	UniV3Quoter            string                  `yaml:"uniV3Quoter,omitempty" json:"uniV3Quoter,omitempty"`
	UniV2Routers           []string                `yaml:"uniV2Routers,omitempty" json:"uniV2Routers,omitempty"`
	SolidlyRouters         []SolidlyRouterConfig   `yaml:"solidlyRouters,omitempty" json:"solidlyRouters,omitempty"`
	Tokens                 map[string]TokenInfo    `yaml:"tokens" json:"tokens"`
	RiskOverrides          *RiskOverrides          `yaml:"riskOverrides,omitempty" json:"riskOverrides,omitempty"`
}

// SolidlyRouterConfig names a Solidly-form router plus its factory.
type SolidlyRouterConfig struct {
	Router  string `yaml:"router" json:"router"`
	Factory string `yaml:"factory" json:"factory"`
}

// Market is one (chain, debt, collateral) liquidation market.
type Market struct {
	ChainID            uint64 `yaml:"chainId" json:"chainId"`
	DebtSymbol         string `yaml:"debtSymbol" json:"debtSymbol"`
	CollateralSymbol   string `yaml:"collateralSymbol" json:"collateralSymbol"`
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	CloseFactorBps     uint32 `yaml:"closeFactorBps" json:"closeFactorBps"`
	LiquidationBonusBps uint32 `yaml:"liquidationBonusBps" json:"liquidationBonusBps"`
}

// DefaultCloseFactorBps and DefaultLiquidationBonusBps are the Market zero
// values used when a config entry omits them.
const (
	DefaultCloseFactorBps      uint32 = 5000
	DefaultLiquidationBonusBps uint32 = 800
)

// WithDefaults returns m with zero-valued bps fields replaced by the Aave v3
// protocol defaults.
func (m Market) WithDefaults() Market {
	if m.CloseFactorBps == 0 {
		m.CloseFactorBps = DefaultCloseFactorBps
	}
	if m.LiquidationBonusBps == 0 {
		m.LiquidationBonusBps = DefaultLiquidationBonusBps
	}
	return m
}

// AssetPolicy is the per-debt-symbol profit/slippage policy triple.
// Invariants: 0 < FloorBps < 10_000; 0 < GapCapBps <= 10_000;
// 0 <= SlippageBps < 10_000.
type AssetPolicy struct {
	FloorBps     uint32 `yaml:"floorBps" json:"floorBps"`
	GapCapBps    uint32 `yaml:"gapCapBps" json:"gapCapBps"`
	SlippageBps  uint32 `yaml:"slippageBps" json:"slippageBps"`
}

// Valid reports whether the policy obeys spec.md's invariants.
func (p AssetPolicy) Valid() bool {
	return p.FloorBps > 0 && p.FloorBps < 10_000 &&
		p.GapCapBps > 0 && p.GapCapBps <= 10_000 &&
		p.SlippageBps < 10_000
}

// RiskConfig is the global risk policy for the runner.
type RiskConfig struct {
	DryRun                   bool            `yaml:"dryRun" json:"dryRun"`
	GasCapUSD                float64         `yaml:"gasCapUsd" json:"gasCapUsd"`
	PnlPerGasMin             float64         `yaml:"pnlPerGasMin" json:"pnlPerGasMin"`
	FailRateCap              float64         `yaml:"failRateCap" json:"failRateCap"`
	HealthFactorMax          float64         `yaml:"healthFactorMax" json:"healthFactorMax"`
	DenyAssets               map[string]bool `yaml:"denyAssets" json:"denyAssets"`
	MaxRepayUSD              float64         `yaml:"maxRepayUsd" json:"maxRepayUsd"`
	MaxLiveExecutions        int             `yaml:"maxLiveExecutions" json:"maxLiveExecutions"`
	MaxSessionNotionalUSD    float64         `yaml:"maxSessionNotionalUsd" json:"maxSessionNotionalUsd"`
	MaxAttemptsPerBorrowerHr int             `yaml:"maxAttemptsPerBorrowerHour" json:"maxAttemptsPerBorrowerHour"`
	SequencerGraceSecs       int             `yaml:"sequencerGraceSecs" json:"sequencerGraceSecs"`
	SequencerStaleSecs       int             `yaml:"sequencerStaleSecs" json:"sequencerStaleSecs"`
}

// TokenAmount pairs an exact base-unit integer amount with the asset it is
// denominated in. Amounts are never represented as float64; only the USD
// legs computed from them are.
type TokenAmount struct {
	Symbol   string
	Address  string
	Decimals uint8
	Amount   *big.Int
}

// ToFloat converts an exact token amount to a float64 at the given decimals,
// the single conversion site spec.md §9 calls for (`toNumber(amount, decimals)`).
func ToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetFloat64(pow10(decimals))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

// FromFloat is ToFloat's inverse: it converts a human-scale amount to exact
// base units at the given decimals, the arbitrage fabric's single
// conversion site for turning configured trade sizes into on-chain amounts.
func FromFloat(amount float64, decimals uint8) *big.Int {
	f := new(big.Float).SetFloat64(amount)
	scale := new(big.Float).SetFloat64(pow10(decimals))
	f.Mul(f, scale)
	out, _ := f.Int(nil)
	return out
}

func pow10(n uint8) float64 {
	v := 1.0
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}
