package control

import (
	"context"
	"testing"

	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

func TestBorrowerThrottleAllowsUpToLimitThenRejects(t *testing.T) {
	th := New(nil, logger.New("test"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := th.BorrowerAllowed(ctx, 1, "0xabc", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("expected attempt %d to be allowed", i+1)
		}
	}

	ok, err := th.BorrowerAllowed(ctx, 1, "0xabc", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected third attempt to be throttled")
	}
}

func TestBorrowerThrottleIsolatesKeysByChainAndBorrower(t *testing.T) {
	th := New(nil, logger.New("test"))
	ctx := context.Background()

	if ok, _ := th.BorrowerAllowed(ctx, 1, "0xabc", 1); !ok {
		t.Fatalf("expected first borrower first attempt allowed")
	}
	if ok, _ := th.BorrowerAllowed(ctx, 1, "0xabc", 1); ok {
		t.Fatalf("expected same borrower second attempt throttled")
	}
	if ok, _ := th.BorrowerAllowed(ctx, 1, "0xdef", 1); !ok {
		t.Fatalf("expected different borrower to have its own window")
	}
	if ok, _ := th.BorrowerAllowed(ctx, 2, "0xabc", 1); !ok {
		t.Fatalf("expected different chain to have its own window")
	}
}

func TestEdgeThrottleUsesDefaultLimitWhenUnset(t *testing.T) {
	th := New(nil, logger.New("test"))
	ctx := context.Background()

	for i := 0; i < DefaultEdgeLimit; i++ {
		ok, err := th.EdgeAllowed(ctx, 10, "WETH/USDC", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("expected attempt %d within default limit to be allowed", i+1)
		}
	}
	ok, _ := th.EdgeAllowed(ctx, 10, "WETH/USDC", 0)
	if ok {
		t.Fatalf("expected attempt beyond default limit to be throttled")
	}
}

func TestBorrowerThrottleFallsBackToMemoryWhenRedisIncrFails(t *testing.T) {
	th := New(&failingRedisClient{}, logger.New("test"))
	ctx := context.Background()

	ok, err := th.BorrowerAllowed(ctx, 1, "0xabc", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected fallback path to still allow first attempt")
	}
	ok, err = th.BorrowerAllowed(ctx, 1, "0xabc", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected fallback path to throttle second attempt")
	}
}
