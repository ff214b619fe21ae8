package policy

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// poolABIJSON is Aave v3 Pool.getUserAccountData(address), the live
// health-factor read gate 7 of spec.md §4.F requires.
const poolABIJSON = `[
	{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserAccountData","outputs":[{"internalType":"uint256","name":"totalCollateralBase","type":"uint256"},{"internalType":"uint256","name":"totalDebtBase","type":"uint256"},{"internalType":"uint256","name":"availableBorrowsBase","type":"uint256"},{"internalType":"uint256","name":"currentLiquidationThreshold","type":"uint256"},{"internalType":"uint256","name":"ltv","type":"uint256"},{"internalType":"uint256","name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var poolABI abi.ABI

func init() {
	var err error
	poolABI, err = abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic("policy: bad pool abi: " + err.Error())
	}
}
