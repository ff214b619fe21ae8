package executor

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// swapRouterABIJSON is UniV3 SwapRouter's exactInput surface: a single
// multi-hop call carries the fabric's whole round trip (sell leg then buy
// leg) as one encoded path, per spec.md §4.K's executor section.
const swapRouterABIJSON = `[
	{"inputs":[{"internalType":"struct ExactInputParams","name":"params","type":"tuple","components":[
		{"internalType":"bytes","name":"path","type":"bytes"},
		{"internalType":"address","name":"recipient","type":"address"},
		{"internalType":"uint256","name":"deadline","type":"uint256"},
		{"internalType":"uint256","name":"amountIn","type":"uint256"},
		{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"}
	]}],"name":"exactInput","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}
]`

// erc20ABIJSON is the allowance/approve/balanceOf surface the executor and
// inventory manager need.
const erc20ABIJSON = `[
	{"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"address","name":"spender","type":"address"}],"name":"allowance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var swapRouterABI abi.ABI
var erc20ABI abi.ABI

func init() {
	var err error
	swapRouterABI, err = abi.JSON(strings.NewReader(swapRouterABIJSON))
	if err != nil {
		panic("arbitrage/executor: bad swap router abi: " + err.Error())
	}
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("arbitrage/executor: bad erc20 abi: " + err.Error())
	}
}

// maxUint256 is the one-shot MAX approval amount spec.md §4.K calls for.
var maxUint256, _ = new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
