package domain

import "time"

// EdgeSource tags how a QuoteEdge was discovered.
type EdgeSource string

const (
	EdgeSingleHop   EdgeSource = "single-hop"
	EdgeTriangular  EdgeSource = "triangular"
	EdgeCrossChain  EdgeSource = "cross-chain"
)

// Leg is one ordered swap within a QuoteEdge.
type Leg struct {
	Kind      string // "flash-swap" | "swap"
	Venue     string
	TokenIn   string
	TokenOut  string
	AmountIn  float64
	AmountOut float64
}

// EdgeRisk carries the risk classification attached to an arbitrage edge.
type EdgeRisk struct {
	Confidence float64
	Level      string // low | medium | high
}

// QuoteEdge is a candidate arbitrage trade that starts and ends in the same
// base token, per spec.md §3/§4.K.
type QuoteEdge struct {
	ID          string
	Source      EdgeSource
	Legs        []Leg
	SizeIn      float64
	EstNetUSD   float64
	EstGasUSD   float64
	Risk        EdgeRisk
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Tags        []string
	Metrics     map[string]float64
	Metadata    map[string]interface{}
}

// DepthTier is one sampled multiplier of a pair's configured trade size.
type DepthTier float64

// Standard depth tiers sampled by the price graph, per spec.md §4.K.
var DepthTiers = []DepthTier{0.25, 0.5, 1.0, 1.5, 2.0}

// PrimaryTier is the 1x depth tier used as the reference point for slippage
// and freshness calculations.
const PrimaryTier DepthTier = 1.0

// DepthPoint is one sampled tier of a pair's venue-specific depth curve.
type DepthPoint struct {
	Multiplier        DepthTier
	AmountIn          float64
	AmountOut         float64
	PriceQuotePerBase float64
	PriceBasePerQuote float64
	SlippageBps       int64
	GasEstimate       uint64
	UpdatedAtMs       int64
}

// VenueConfig names one UniV3-form pool a fabric pair can route through:
// either an explicit pool address, or a (factory, fee) pair the Pair
// Registry resolves to a pool address via getPool.
type VenueConfig struct {
	Name           string `yaml:"name" json:"name"`
	Router         string `yaml:"router" json:"router"`
	Quoter         string `yaml:"quoter" json:"quoter"`
	Factory        string `yaml:"factory" json:"factory"`
	Pool           string `yaml:"pool,omitempty" json:"pool,omitempty"`
	Fee            uint32 `yaml:"fee" json:"fee"`
	SqrtPriceLimit string `yaml:"sqrtPriceLimit,omitempty" json:"sqrtPriceLimit,omitempty"`
}

// PairConfig is one configured (chain, base, quote) arbitrage pair and the
// venues the fabric is allowed to quote it against, per spec.md §4.K's Pair
// Registry.
type PairConfig struct {
	ChainID        uint64        `yaml:"chainId" json:"chainId"`
	PairID         string        `yaml:"pairId" json:"pairId"`
	Base           TokenInfo     `yaml:"base" json:"base"`
	BaseSymbol     string        `yaml:"baseSymbol" json:"baseSymbol"`
	Quote          TokenInfo     `yaml:"quote" json:"quote"`
	QuoteSymbol    string        `yaml:"quoteSymbol" json:"quoteSymbol"`
	TradeSize      float64       `yaml:"tradeSize" json:"tradeSize"`
	MaxSlippageBps uint32        `yaml:"maxSlippageBps,omitempty" json:"maxSlippageBps,omitempty"`
	MinNetUSD      float64       `yaml:"minNetUsd,omitempty" json:"minNetUsd,omitempty"`
	MinPnlMultiple float64       `yaml:"minPnlMultiple,omitempty" json:"minPnlMultiple,omitempty"`
	Venues         []VenueConfig `yaml:"venues" json:"venues"`
}

// MinViableVenues is spec.md §4.K's floor: "a pair with fewer than 2 viable
// venues is dropped".
const MinViableVenues = 2

// ResolvedVenue is a VenueConfig after the Pair Registry has confirmed (or
// resolved via getPool) its on-chain pool address.
type ResolvedVenue struct {
	VenueConfig
	PoolAddress string
}

// ResolvedPair is a PairConfig narrowed to its viable, pool-resolved venues.
type ResolvedPair struct {
	PairConfig
	Venues []ResolvedVenue
}

// FabricAttemptStatus is the closed set of states a fabric attempt row can
// carry, parallel to AttemptStatus on the liquidation side.
type FabricAttemptStatus string

const (
	FabricStatusSkipped FabricAttemptStatus = "skipped"
	FabricStatusSent    FabricAttemptStatus = "sent"
	FabricStatusSuccess FabricAttemptStatus = "success"
	FabricStatusError   FabricAttemptStatus = "error"
)

// FabricAttemptRow is the append-only record of one solved/executed
// QuoteEdge, persisted to the `laf_attempts` table (spec.md §6).
type FabricAttemptRow struct {
	ID        int64
	ChainID   uint64
	PairID    string
	Source    EdgeSource
	Status    FabricAttemptStatus
	TxHash    string
	NetUSD    float64
	Metadata  map[string]interface{}
	CreatedAt time.Time
}
