// Package intake implements spec.md §4.C: the two-producer candidate
// pipeline (subgraph poller + realtime watcher) feeding one bounded,
// drop-oldest queue, generalized from the teacher's arbitrage_detector.go
// ticker-driven scan/channel pair.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// SubgraphPollInterval is the base poll cadence per enabled chain.
const SubgraphPollInterval = 500 * time.Millisecond

// SubgraphPageSize is the maximum user-reserve row count fetched per poll.
const SubgraphPageSize = 500

// MinHealthFactor and MaxHealthFactor bound the candidate emission window
// spec.md §4.C names: HF ∈ (0, 1.1).
const (
	MinHealthFactor = 0.0
	MaxHealthFactor = 1.1
)

const reserveRowQuery = `
query UserReserves($first: Int!) {
  userReserves(first: $first, where: { borrowCount_gt: 0 }) {
    user { id }
    reserve { symbol underlyingAsset decimals priceInEth reserveLiquidationThreshold }
    currentTotalDebt
    currentATokenBalance
    usageAsCollateralEnabledOnUser
  }
}`

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type reserveRowJSON struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Reserve struct {
		Symbol                     string `json:"symbol"`
		UnderlyingAsset            string `json:"underlyingAsset"`
		Decimals                   uint8  `json:"decimals"`
		PriceInEth                 string `json:"priceInEth"`
		ReserveLiquidationThresh   string `json:"reserveLiquidationThreshold"`
	} `json:"reserve"`
	CurrentTotalDebt               string `json:"currentTotalDebt"`
	CurrentATokenBalance           string `json:"currentATokenBalance"`
	UsageAsCollateralEnabledOnUser bool   `json:"usageAsCollateralEnabledOnUser"`
}

type graphqlResponse struct {
	Data struct {
		UserReserves []reserveRowJSON `json:"userReserves"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// SubgraphPoller polls one chain's Aave subgraph and emits candidates into a
// shared Queue.
type SubgraphPoller struct {
	chainID  uint64
	endpoint string
	http     *http.Client
	queue    *Queue
	dedup    *Dedup
	log      *logger.Logger
}

// NewSubgraphPoller builds a poller for one chain.
func NewSubgraphPoller(chainID uint64, endpoint string, queue *Queue, dedup *Dedup, log *logger.Logger) *SubgraphPoller {
	return &SubgraphPoller{
		chainID:  chainID,
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
		queue:    queue,
		dedup:    dedup,
		log:      log.ForChain(chainID).Named("subgraph"),
	}
}

// Run polls at SubgraphPollInterval until ctx is canceled.
func (p *SubgraphPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(SubgraphPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				p.log.Warn("subgraph poll failed", "error", err)
			}
		}
	}
}

// PollNow runs one poll cycle immediately, outside the ticker cadence.
// Used as the realtime watcher's refetch callback: a Pool/AnswerUpdated
// event debounces into one full rescan rather than a borrower-scoped query,
// since the subgraph has no single-borrower endpoint this tree queries.
func (p *SubgraphPoller) PollNow(ctx context.Context) error {
	return p.pollOnce(ctx)
}

func (p *SubgraphPoller) pollOnce(ctx context.Context) error {
	rows, err := p.fetchRows(ctx)
	if err != nil {
		return err
	}
	p.emit(rows, time.Now())
	return nil
}

func (p *SubgraphPoller) fetchRows(ctx context.Context) ([]ReserveRow, error) {
	body, err := json.Marshal(graphqlRequest{
		Query:     reserveRowQuery,
		Variables: map[string]interface{}{"first": SubgraphPageSize},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("subgraph decode: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", parsed.Errors[0].Message)
	}

	rows := make([]ReserveRow, 0, len(parsed.Data.UserReserves))
	for _, r := range parsed.Data.UserReserves {
		row, ok := decodeRow(r)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func decodeRow(r reserveRowJSON) (ReserveRow, bool) {
	priceInEth, ok := new(big.Int).SetString(r.Reserve.PriceInEth, 10)
	if !ok {
		return ReserveRow{}, false
	}
	liqThresh, ok := new(big.Int).SetString(r.Reserve.ReserveLiquidationThresh, 10)
	if !ok {
		liqThresh = big.NewInt(0)
	}
	debt, ok := new(big.Int).SetString(r.CurrentTotalDebt, 10)
	if !ok {
		debt = big.NewInt(0)
	}
	coll, ok := new(big.Int).SetString(r.CurrentATokenBalance, 10)
	if !ok {
		coll = big.NewInt(0)
	}

	// The query's borrowCount_gt filter already limits rows to borrowing
	// users, so collateral-only rows count toward the borrower's aggregate.
	borrowCount := 1

	return ReserveRow{
		Borrower:             r.User.ID,
		ReserveSymbol:        r.Reserve.Symbol,
		ReserveAddress:       r.Reserve.UnderlyingAsset,
		Decimals:             r.Reserve.Decimals,
		PriceInEth:           priceInEth,
		CurrentTotalDebt:     debt,
		CurrentATokenBalance: coll,
		LiquidationThreshold: uint32(liqThresh.Uint64()),
		UsageAsCollateral:    r.UsageAsCollateralEnabledOnUser,
		BorrowCount:          borrowCount,
	}, true
}

// emit groups rows by borrower, computes each borrower's health factor, and
// enqueues one Candidate per (debt reserve × collateral reserve) cross
// product for borrowers whose HF falls in (MinHealthFactor, MaxHealthFactor),
// deduplicated against dedup.
func (p *SubgraphPoller) emit(rows []ReserveRow, now time.Time) {
	byBorrower := AggregateByBorrower(rows)

	for borrower, agg := range byBorrower {
		hf := agg.HealthFactor()
		if !(hf > MinHealthFactor && hf < MaxHealthFactor) {
			continue
		}

		for _, debtRow := range agg.debtRows {
			for _, collRow := range agg.collateralRows {
				cand := domain.Candidate{
					Borrower: borrower,
					ChainID:  p.chainID,
					Debt: domain.TokenAmount{
						Symbol:   debtRow.ReserveSymbol,
						Address:  debtRow.ReserveAddress,
						Decimals: debtRow.Decimals,
						Amount:   debtRow.CurrentTotalDebt,
					},
					Collateral: domain.TokenAmount{
						Symbol:   collRow.ReserveSymbol,
						Address:  collRow.ReserveAddress,
						Decimals: collRow.Decimals,
						Amount:   collRow.CurrentATokenBalance,
					},
					HealthFactor: hf,
				}

				if !p.dedup.Admit(cand.IdentityKey(), now) {
					continue
				}
				p.queue.Push(cand)
			}
		}
	}
}
