package routes

import (
	"testing"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
)

func TestBuildEnumeratesUniV3FeeTiers(t *testing.T) {
	chain := domain.ChainConfig{UniV3Router: "0xrouter"}
	res := Build(chain)

	if len(res.Options) != len(DefaultUniV3FeeTiers) {
		t.Fatalf("expected %d options, got %d", len(DefaultUniV3FeeTiers), len(res.Options))
	}
	if res.GapFee != DefaultGapFee {
		t.Fatalf("expected default gap fee %d, got %d", DefaultGapFee, res.GapFee)
	}
	if res.GapRouter != "0xrouter" {
		t.Fatalf("expected gap router to be the univ3 router, got %q", res.GapRouter)
	}
}

func TestBuildEnumeratesAllConfiguredRouters(t *testing.T) {
	chain := domain.ChainConfig{
		UniV3Router:  "0xv3",
		UniV2Routers: []string{"0xv2a", "0xv2b"},
		SolidlyRouters: []domain.SolidlyRouterConfig{
			{Router: "0xsolidly", Factory: "0xfactory"},
		},
	}
	res := Build(chain)

	wantLen := len(DefaultUniV3FeeTiers) + len(chain.UniV2Routers) + 2 // stable+volatile
	if len(res.Options) != wantLen {
		t.Fatalf("expected %d options, got %d", wantLen, len(res.Options))
	}

	var sawStable, sawVolatile bool
	for _, o := range res.Options {
		if o.Kind == domain.RouteSolidly {
			if o.Stable {
				sawStable = true
			} else {
				sawVolatile = true
			}
		}
	}
	if !sawStable || !sawVolatile {
		t.Fatalf("expected both stable and volatile solidly options, stable=%v volatile=%v", sawStable, sawVolatile)
	}
}

func TestBuildWithNoRoutersConfigured(t *testing.T) {
	res := Build(domain.ChainConfig{})
	if len(res.Options) != 0 {
		t.Fatalf("expected no options, got %d", len(res.Options))
	}
	if res.GapRouter != "" {
		t.Fatalf("expected empty gap router, got %q", res.GapRouter)
	}
}
