package simulator

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// poolABIJSON is the Aave v3 Pool surface the simulator probes directly:
// a successful gas estimate here means the on-chain liquidation call itself
// would go through, independent of which wrapper contract (flash or funds
// mode) the executor later routes the real transaction through.
const poolABIJSON = `[
	{"inputs":[{"internalType":"address","name":"collateralAsset","type":"address"},{"internalType":"address","name":"debtAsset","type":"address"},{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"debtToCover","type":"uint256"},{"internalType":"bool","name":"receiveAToken","type":"bool"}],"name":"liquidationCall","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// opL1FeeOracleABIJSON is OP-stack's GasPriceOracle.getL1Fee(bytes).
const opL1FeeOracleABIJSON = `[
	{"inputs":[{"internalType":"bytes","name":"_data","type":"bytes"}],"name":"getL1Fee","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// arbGasInfoABIJSON is Arbitrum's ArbGasInfo.gasEstimateL1Component.
const arbGasInfoABIJSON = `[
	{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"bytes","name":"data","type":"bytes"},{"internalType":"bool","name":"contractCreation","type":"bool"}],"name":"gasEstimateL1Component","outputs":[{"internalType":"uint64","name":"gasEstimateForL1","type":"uint64"},{"internalType":"uint256","name":"baseFee","type":"uint256"},{"internalType":"uint256","name":"l1BaseFeeEstimate","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

var poolABI, opL1FeeOracleABI, arbGasInfoABI abi.ABI

func init() {
	var err error
	poolABI, err = abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic("simulator: bad pool abi: " + err.Error())
	}
	opL1FeeOracleABI, err = abi.JSON(strings.NewReader(opL1FeeOracleABIJSON))
	if err != nil {
		panic("simulator: bad op l1 fee oracle abi: " + err.Error())
	}
	arbGasInfoABI, err = abi.JSON(strings.NewReader(arbGasInfoABIJSON))
	if err != nil {
		panic("simulator: bad arb gas info abi: " + err.Error())
	}
}
