package policy

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dimajoyti/aave-sentinel/pkg/evmclient"
)

// HealthFactorScale is the fixed-point scale Aave v3's Pool.getUserAccountData
// reports healthFactor at.
const HealthFactorScale = 1e18

// maxUint256HealthFactor is the sentinel Aave returns for healthFactor when
// a borrower carries zero debt (type(uint256).max), read back by go-ethereum
// as a regular big.Int.
var maxUint256HealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// liveHealthFactor calls Pool.getUserAccountData and converts the result to
// a float64, mapping Aave's "no debt" sentinel to +Inf per domain.InfiniteHealthFactor.
func liveHealthFactor(ctx context.Context, client *evmclient.Client, pool, borrower string) (float64, error) {
	data, err := poolABI.Pack("getUserAccountData", common.HexToAddress(borrower))
	if err != nil {
		return 0, fmt.Errorf("policy: pack getUserAccountData: %w", err)
	}

	poolAddr := common.HexToAddress(pool)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: data})
	if err != nil {
		return 0, fmt.Errorf("policy: getUserAccountData call: %w", err)
	}

	vals, err := poolABI.Unpack("getUserAccountData", out)
	if err != nil || len(vals) != 6 {
		return 0, fmt.Errorf("policy: getUserAccountData unpack: %w", err)
	}

	hf := vals[5].(*big.Int)
	if hf.Cmp(maxUint256HealthFactor) == 0 {
		return math.Inf(1), nil
	}

	f := new(big.Float).Quo(new(big.Float).SetInt(hf), big.NewFloat(HealthFactorScale))
	out64, _ := f.Float64()
	return out64, nil
}
