package executor

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/internal/xerrors"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

func testPlan() *domain.Plan {
	return &domain.Plan{
		Borrower:     "0x0000000000000000000000000000000000f00d",
		ChainID:      1,
		DebtAsset:    domain.TokenAmount{Symbol: "USDC", Address: "0x0000000000000000000000000000000000dEaD", Decimals: 6},
		CollAsset:    domain.TokenAmount{Symbol: "WETH", Address: "0x0000000000000000000000000000000000bEEf", Decimals: 18},
		RepayAmount:  big.NewInt(1_000_000),
		SeizeAmount:  big.NewInt(1e15),
		Route:        domain.RouteOption{Kind: domain.RouteUniV3, Router: "0x0000000000000000000000000000000000aaaa", Fee: 500},
		AmountOutMin: big.NewInt(990_000),
		MinProfit:    big.NewInt(10_000),
		Mode:         domain.ModeFlash,
		Deadline:     time.Now().Add(5 * time.Minute),
	}
}

func TestBuildCalldataSelectsFlashMethod(t *testing.T) {
	e := &Executor{log: logger.New("test")}
	data, err := e.buildCalldata(domain.ModeFlash, testPlan(), domain.ChainConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantID := liquidatorABI.Methods["liquidateWithFlash"].ID
	if len(data) < 4 || string(data[:4]) != string(wantID) {
		t.Fatalf("expected liquidateWithFlash selector, got %x", data[:4])
	}
}

func TestBuildCalldataSelectsFundsMethod(t *testing.T) {
	e := &Executor{log: logger.New("test")}
	data, err := e.buildCalldata(domain.ModeFunds, testPlan(), domain.ChainConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantID := liquidatorABI.Methods["liquidateWithFunds"].ID
	if len(data) < 4 || string(data[:4]) != string(wantID) {
		t.Fatalf("expected liquidateWithFunds selector, got %x", data[:4])
	}
}

func TestClassifyFailureDetectsHealthFactorRecovered(t *testing.T) {
	e := &Executor{log: logger.New("test"), failures: newFailureTracker(nil)}
	err := errors.New("execution reverted: " + xerrors.HealthFactorNotBelowThresholdSelector)

	res, rerr := e.classifyFailure(err, domain.ModeFlash)
	if rerr != nil {
		t.Fatalf("expected hf-recovered to not propagate as an error, got %v", rerr)
	}
	if res.ErrorClass != "hf-recovered" {
		t.Fatalf("expected ErrorClass=hf-recovered, got %q", res.ErrorClass)
	}
}

func TestClassifyFailureClassifiesOtherErrors(t *testing.T) {
	e := &Executor{log: logger.New("test"), failures: newFailureTracker(nil)}
	err := errors.New("execution reverted: out of gas")

	res, rerr := e.classifyFailure(err, domain.ModeFlash)
	if rerr == nil {
		t.Fatalf("expected generic revert to propagate as an error")
	}
	if res.ErrorClass != "error" {
		t.Fatalf("expected ErrorClass=error, got %q", res.ErrorClass)
	}
}

func TestContainsSelector(t *testing.T) {
	if !containsSelector("revert 0x930bb771 occurred", "0x930bb771") {
		t.Fatalf("expected selector to be found")
	}
	if containsSelector(strings.Repeat("x", 10), "0x930bb771") {
		t.Fatalf("expected selector not to be found")
	}
}
