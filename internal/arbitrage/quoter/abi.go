package quoter

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// quoterABIJSON mirrors internal/oracle's QuoterV2 surface; duplicated
// rather than imported so the fabric's quoter mesh stays independent of the
// liquidation side's oracle package (the two quote for different purposes:
// gap detection vs. arbitrage sizing).
const quoterABIJSON = `[
	{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

// poolABIJSON is the one UniV3 pool read the sqrtPriceLimit candidate order
// needs: the current slot0 price.
const poolABIJSON = `[
	{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"}
]`

var quoterABI abi.ABI
var poolABI abi.ABI

func init() {
	var err error
	quoterABI, err = abi.JSON(strings.NewReader(quoterABIJSON))
	if err != nil {
		panic("quoter: bad quoter abi: " + err.Error())
	}
	poolABI, err = abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic("quoter: bad pool abi: " + err.Error())
	}
}
