package executor

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds one EOA's private key and signs the at-most-one transaction
// per Plan the executor submits. Generalized from the teacher's
// web3-wallet-backend transaction service, which decrypts a keystore and
// calls crypto.HexToECDSA/types.SignTx the same way; this runner takes the
// key directly from env/config since there is no multi-tenant wallet store.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded secp256k1 private key (with or without a
// "0x" prefix).
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("executor: parse signer key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the sender address transactions are signed and sent from.
func (s *Signer) Address() common.Address { return s.address }

// SignTx signs tx for chainID using an EIP-1559 (London) signer.
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewLondonSigner(chainID), s.key)
}
