package executor

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
)

// liquidatorABIJSON is the executor contract's liquidateWithFlash/
// liquidateWithFunds pair. Both take a single Plan tuple matching
// spec.md §6's external-interface layout bit-for-bit: (borrower, debtAsset,
// collateralAsset, repayAmount, dexId, router, uniFee, solidlyStable,
// solidlyFactory, minProfit, amountOutMin, deadline, path).
const planTupleComponents = `[
	{"internalType":"address","name":"borrower","type":"address"},
	{"internalType":"address","name":"debtAsset","type":"address"},
	{"internalType":"address","name":"collateralAsset","type":"address"},
	{"internalType":"uint256","name":"repayAmount","type":"uint256"},
	{"internalType":"uint8","name":"dexId","type":"uint8"},
	{"internalType":"address","name":"router","type":"address"},
	{"internalType":"uint24","name":"uniFee","type":"uint24"},
	{"internalType":"bool","name":"solidlyStable","type":"bool"},
	{"internalType":"address","name":"solidlyFactory","type":"address"},
	{"internalType":"uint256","name":"minProfit","type":"uint256"},
	{"internalType":"uint256","name":"amountOutMin","type":"uint256"},
	{"internalType":"uint256","name":"deadline","type":"uint256"},
	{"internalType":"bytes","name":"path","type":"bytes"}
]`

const liquidatorABIJSON = `[
	{"inputs":[{"internalType":"struct Plan","name":"plan","type":"tuple","components":` + planTupleComponents + `}],
	"name":"liquidateWithFlash","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"struct Plan","name":"plan","type":"tuple","components":` + planTupleComponents + `}],
	"name":"liquidateWithFunds","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// dexID is the on-chain tag for the DEX family a Plan routes its seized
// collateral through, matching the Plan tuple's uint8 dexId field.
type dexID uint8

const (
	dexIDUniV3 dexID = iota
	dexIDUniV2
	dexIDSolidly
)

func dexIDFor(kind domain.RouteKind) dexID {
	switch kind {
	case domain.RouteUniV2:
		return dexIDUniV2
	case domain.RouteSolidly:
		return dexIDSolidly
	default:
		return dexIDUniV3
	}
}

// erc20ABIJSON is the one ERC-20 read the inventory-mode balance check
// needs.
const erc20ABIJSON = `[
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var liquidatorABI abi.ABI
var erc20ABI abi.ABI

func init() {
	var err error
	liquidatorABI, err = abi.JSON(strings.NewReader(liquidatorABIJSON))
	if err != nil {
		panic("executor: bad liquidator abi: " + err.Error())
	}
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("executor: bad erc20 abi: " + err.Error())
	}
}
