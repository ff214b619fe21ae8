package executor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

// Well-known Anvil/Hardhat test account #0; never used on a real chain.
const testPrivateKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Address().Hex() == "" {
		t.Fatalf("expected a derived address")
	}
}

func TestSignerSignsTransaction(t *testing.T) {
	s, err := NewSigner(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		Value:     big.NewInt(0),
	})

	signed, err := s.SignTx(tx, big.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sender, err := types.Sender(types.NewLondonSigner(big.NewInt(1)), signed)
	if err != nil {
		t.Fatalf("unexpected error recovering sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("expected recovered sender to match signer address, got %s want %s", sender.Hex(), s.Address().Hex())
	}
}
