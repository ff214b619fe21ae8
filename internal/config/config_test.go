package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadResolvesEnvAndMissing(t *testing.T) {
	t.Setenv("TEST_RPC_URL", "https://rpc.example/v1")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
chains:
  - chainId: 42161
    name: arbitrum
    rpcUrl: ${TEST_RPC_URL}
    enabled: true
    poolAddressesProvider: "0xabc"
    tokens: {}
  - chainId: 10
    name: optimism
    rpcUrl: ${UNSET_RPC_URL}
    enabled: true
    poolAddressesProvider: "0xdef"
    tokens: {}
markets: []
assets: {}
risk:
  dryRun: true
  gasCapUsd: 5
  pnlPerGasMin: 1
  failRateCap: 0.3
  healthFactorMax: 1.0
  denyAssets: {}
  maxRepayUsd: 100000
  maxLiveExecutions: 3
  maxSessionNotionalUsd: 500000
  maxAttemptsPerBorrowerHour: 5
contracts:
  liquidator: "0x123"
beneficiary: "0x456"
analysis:
  pollIntervalMs: 1000
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	arb, ok := cfg.ChainByID(42161)
	if !ok || arb.RPCURL != "https://rpc.example/v1" {
		t.Fatalf("expected interpolated rpc url, got %+v ok=%v", arb, ok)
	}

	op, ok := cfg.ChainByID(10)
	if !ok || op.RPCURL != "MISSING:UNSET_RPC_URL" {
		t.Fatalf("expected MISSING sentinel, got %q", op.RPCURL)
	}

	if cfg.Risk.MaxAttemptsPerBorrowerHr != 5 {
		t.Fatalf("expected risk config to parse, got %+v", cfg.Risk)
	}
}

func TestLoadParsesRedisControlServerAndSubgraphSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
chains: []
markets: []
assets: {}
risk:
  dryRun: true
contracts:
  liquidator: "0x123"
beneficiary: "0x456"
analysis:
  pollIntervalMs: 1000
redis:
  addr: "redis:6379"
  db: 2
control:
  killSwitchFile: "/tmp/KILL"
  maxSessionExecutions: 50
  maxSessionNotionalUsd: 25000
server:
  addr: ":8080"
subgraphEndpoints:
  42161: "https://example.test/subgraph"
adaptiveRemoteUrl: "https://adaptive.example/predict"
inventoryFloats:
  42161:
    WETH: 2.5
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("expected redis section to parse, got %+v", cfg.Redis)
	}
	if cfg.Control.MaxSessionExecutions != 50 || cfg.Control.KillSwitchFile != "/tmp/KILL" {
		t.Fatalf("expected control section to parse, got %+v", cfg.Control)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected server section to parse, got %+v", cfg.Server)
	}
	if cfg.SubgraphEndpoints[42161] != "https://example.test/subgraph" {
		t.Fatalf("expected subgraph endpoint to parse, got %+v", cfg.SubgraphEndpoints)
	}
	if cfg.AdaptiveRemoteURL != "https://adaptive.example/predict" {
		t.Fatalf("expected adaptive remote url to parse, got %q", cfg.AdaptiveRemoteURL)
	}
	if cfg.InventoryFloats[42161]["WETH"] != 2.5 {
		t.Fatalf("expected inventory floats to parse, got %+v", cfg.InventoryFloats)
	}
}
