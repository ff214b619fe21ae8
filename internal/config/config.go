// Package config loads the single config.yaml document spec.md §6 names
// (top-level keys chains, markets, assets, risk, dexRouters, contracts,
// beneficiary, analysis). Config loading is an external collaborator per
// spec.md §1 — this package exists only to hand the core library typed
// values, following the nested-struct shape of the teacher's
// pkg/config/config.go, with `${VAR}` environment interpolation resolved at
// load time (unresolved names become the literal `MISSING:<VAR>`).
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
)

// ContractsConfig names the on-chain liquidator/executor contracts.
type ContractsConfig struct {
	Liquidator string `yaml:"liquidator"`
}

// AnalysisConfig configures the analytics feedback loop's poll cadence.
type AnalysisConfig struct {
	PollIntervalMs int `yaml:"pollIntervalMs"`
}

// FabricConfig configures component K, the single-hop Arbitrage Fabric:
// the pairs it quotes and the global floors/cadence its solver applies when
// a pair leaves one unset.
type FabricConfig struct {
	Pairs             []domain.PairConfig `yaml:"pairs"`
	QuoteIntervalMs   int                 `yaml:"quoteIntervalMs"`
	MaxSlippageBps    uint32              `yaml:"maxSlippageBps"`
	MinNetUSD         float64             `yaml:"minNetUsd"`
	MinPnlMultiple    float64             `yaml:"minPnlMultiple"`
	MaxConcurrent     int                 `yaml:"maxConcurrent"`
	ThrottleLimit     int                 `yaml:"throttleLimit"`
	ThrottleWindowSec int                 `yaml:"throttleWindowSec"`
}

// DatabaseConfig names the Postgres connection spec.md §6's attempt store
// persists to, shaped after the teacher's postgres.Config.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbName"`
	SSLMode  string `yaml:"sslMode"`
}

// RedisConfig names the Redis instance backing the borrower/edge throttles
// and the executor's distributed nonce lock. A zero-value Addr leaves every
// consumer pinned to its in-memory fallback (single-process deployments).
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// ControlConfig configures the kill switch and per-process session caps of
// spec.md §4.H, independent of any one chain.
type ControlConfig struct {
	KillSwitchFile         string  `yaml:"killSwitchFile,omitempty"`
	KillSwitchEnvVar        string  `yaml:"killSwitchEnvVar,omitempty"`
	MaxSessionExecutions    int     `yaml:"maxSessionExecutions,omitempty"`
	MaxSessionNotionalUSD   float64 `yaml:"maxSessionNotionalUsd,omitempty"`
}

// ServerConfig names the HTTP listen addresses the liquidity-sentinel
// process binds: the main liveness/readiness surface plus the arbitrage
// fabric's separate metrics port.
type ServerConfig struct {
	Addr           string `yaml:"addr,omitempty"`
	MetricsAddr    string `yaml:"metricsAddr,omitempty"`
	FabricMetricsAddr string `yaml:"fabricMetricsAddr,omitempty"`
}

// Config is the root document described by spec.md §6.
type Config struct {
	Chains      []domain.ChainConfig          `yaml:"chains"`
	Markets     []domain.Market               `yaml:"markets"`
	Assets      map[string]domain.AssetPolicy `yaml:"assets"`
	Risk        domain.RiskConfig             `yaml:"risk"`
	Contracts   ContractsConfig               `yaml:"contracts"`
	Beneficiary string                        `yaml:"beneficiary"`
	Analysis    AnalysisConfig                `yaml:"analysis"`
	Database    DatabaseConfig                `yaml:"database"`
	Arbitrage   FabricConfig                  `yaml:"arbitrage"`
	Redis       RedisConfig                   `yaml:"redis"`
	Control     ControlConfig                 `yaml:"control"`
	Server      ServerConfig                  `yaml:"server"`
	SubgraphEndpoints map[uint64]string       `yaml:"subgraphEndpoints,omitempty"`
	AdaptiveRemoteURL string                  `yaml:"adaptiveRemoteUrl,omitempty"`
	InventoryFloats   map[uint64]map[string]float64 `yaml:"inventoryFloats,omitempty"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv resolves `${VAR}` references against the process
// environment; an unresolved name becomes the literal `MISSING:<VAR>`,
// exactly as spec.md §6 specifies.
func interpolateEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return []byte(fmt.Sprintf("MISSING:%s", name))
	})
}

// Load reads, env-interpolates, and parses the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated := interpolateEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal(interpolated, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for i := range cfg.Markets {
		cfg.Markets[i] = cfg.Markets[i].WithDefaults()
	}

	return &cfg, nil
}

// ChainByID returns the chain config with the given id, if present. It does
// not check Enabled; callers do.
func (c *Config) ChainByID(id uint64) (domain.ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ChainID == id {
			return ch, true
		}
	}
	return domain.ChainConfig{}, false
}

// MarketFor returns the market for (chainID, debtSymbol, collSymbol), if any.
func (c *Config) MarketFor(chainID uint64, debtSymbol, collSymbol string) (domain.Market, bool) {
	for _, m := range c.Markets {
		if m.ChainID == chainID && m.DebtSymbol == debtSymbol && m.CollateralSymbol == collSymbol {
			return m, true
		}
	}
	return domain.Market{}, false
}

// PolicyFor returns the AssetPolicy configured for a debt symbol.
func (c *Config) PolicyFor(debtSymbol string) (domain.AssetPolicy, bool) {
	p, ok := c.Assets[debtSymbol]
	return p, ok
}
