package domain

import (
	"fmt"
	"math"
	"math/big"
)

// InfiniteHealthFactor is the sentinel used when a borrower carries zero debt.
var InfiniteHealthFactor = math.Inf(1)

// Candidate is a prospective under-collateralized borrow position for one
// (debt, collateral) pair.
type Candidate struct {
	Borrower     string
	ChainID      uint64
	Debt         TokenAmount
	Collateral   TokenAmount
	HealthFactor float64
}

// IdentityKey returns the dedup identity spec.md §3 defines:
// (chain, borrower, debt.address, collateral.address).
func (c Candidate) IdentityKey() string {
	return fmt.Sprintf("%d:%s:%s:%s", c.ChainID, lowerAddr(c.Borrower), lowerAddr(c.Debt.Address), lowerAddr(c.Collateral.Address))
}

func lowerAddr(addr string) string {
	out := make([]byte, len(addr))
	for i := 0; i < len(addr); i++ {
		b := addr[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

// RouteKind tags the DEX family a RouteOption targets.
type RouteKind string

const (
	RouteUniV3    RouteKind = "univ3"
	RouteUniV2    RouteKind = "univ2"
	RouteSolidly  RouteKind = "solidly"
)

// RouteOption is one candidate route a Plan may be filled through.
type RouteOption struct {
	Kind    RouteKind
	Router  string
	Fee     uint32 // UniV3 only
	Factory string // Solidly only
	Stable  bool   // Solidly only
}

// DexID returns a stable identifier suitable for on-chain Plan payloads and
// metrics labels.
func (r RouteOption) DexID() string {
	switch r.Kind {
	case RouteUniV3:
		return fmt.Sprintf("univ3:%s:%d", lowerAddr(r.Router), r.Fee)
	case RouteSolidly:
		return fmt.Sprintf("solidly:%s:%v", lowerAddr(r.Router), r.Stable)
	default:
		return fmt.Sprintf("univ2:%s", lowerAddr(r.Router))
	}
}

// RouteQuote is the priced result of quoting one RouteOption.
type RouteQuote struct {
	Route         RouteOption
	QuotedOut     *big.Int
	AmountOutMin  *big.Int
}

// ComputeAmountOutMin applies spec.md's invariant:
// amountOutMin = quotedOut * (10_000 - slippageBps) / 10_000, truncating.
func ComputeAmountOutMin(quotedOut *big.Int, slippageBps uint32) *big.Int {
	if quotedOut == nil {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(quotedOut, big.NewInt(int64(10_000-slippageBps)))
	return num.Div(num, big.NewInt(10_000))
}

// CeilDiv computes ceil(a/b) for non-negative big.Ints, used for minProfit.
func CeilDiv(a, b *big.Int) *big.Int {
	if a.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Add(a, new(big.Int).Sub(b, big.NewInt(1)))
	return num.Div(num, b)
}
