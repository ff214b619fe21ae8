package oracle

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// aggregatorABIJSON is the Chainlink AggregatorV3Interface surface this
// package calls, generalized from the teacher's web3-wallet-backend
// chainlink_client.go loadABI (there left as mock data; here actually
// eth_call'd through evmclient.Client.CallContract).
const aggregatorABIJSON = `[
	{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestAnswer","outputs":[{"internalType":"int256","name":"","type":"int256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestTimestamp","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// quoterABIJSON is the UniV3 QuoterV2-style exactInputSingle surface used by
// oracleDexGapBps and, later, the route simulator.
const quoterABIJSON = `[
	{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},{"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},{"internalType":"uint256","name":"gasEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

var aggregatorABI abi.ABI
var quoterABI abi.ABI

func init() {
	var err error
	aggregatorABI, err = abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("oracle: bad aggregator abi: " + err.Error())
	}
	quoterABI, err = abi.JSON(strings.NewReader(quoterABIJSON))
	if err != nil {
		panic("oracle: bad quoter abi: " + err.Error())
	}
}
