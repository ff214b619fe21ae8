// Package adaptive implements spec.md §4.G: an EMA/volatility model over
// observed oracle↔DEX gaps that produces clamped healthFactorMax/gapCapBps
// outputs per (chain, debt, collateral) pair, with an optional remote
// override and an analytics feedback overlay.
package adaptive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dimajoyti/aave-sentinel/internal/domain"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
)

// Alpha is the EMA smoothing factor spec.md §4.G fixes at 0.2.
const Alpha = 0.2

const (
	highVolBps = 500
	lowVolBps  = 150
)

// FeedbackSignal is the per-(chain,pair) analytics-loop summary spec.md
// §4.G's feedback overlay reacts to.
type FeedbackSignal struct {
	HitRate          float64
	OpportunityCostUSD float64
	GapSkipRate      float64
	ErrorRate        float64
	ModelDrift       float64 // positive: model has been too conservative; negative: too loose
}

type pairState struct {
	emaGap decimal.Decimal
	emaVol decimal.Decimal
	init   bool
}

// Model owns the EMA state for every (chain, pair) key the runner scores.
type Model struct {
	mu     sync.Mutex
	states map[domain.PairKey]*pairState

	feedbackMu sync.Mutex
	feedback   map[domain.PairKey]FeedbackSignal

	remoteURL  string
	httpClient *http.Client
	log        *logger.Logger

	warnMu      sync.Mutex
	lastWarnAt  time.Time
}

// New builds a Model. remoteURL may be empty, disabling remote mode.
func New(remoteURL string, log *logger.Logger) *Model {
	return &Model{
		states:     make(map[domain.PairKey]*pairState),
		feedback:   make(map[domain.PairKey]FeedbackSignal),
		remoteURL:  remoteURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		log:        log.Named("adaptive"),
	}
}

// SetFeedback records the Analytics Loop's latest per-(chain,pair) summary
// (spec.md §4.J), consulted by Evaluate whenever its caller passes a nil
// feedback argument.
func (m *Model) SetFeedback(key domain.PairKey, fb FeedbackSignal) {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()
	m.feedback[key] = fb
}

func (m *Model) storedFeedback(key domain.PairKey) *FeedbackSignal {
	m.feedbackMu.Lock()
	defer m.feedbackMu.Unlock()
	if fb, ok := m.feedback[key]; ok {
		return &fb
	}
	return nil
}

// Evaluate folds sample into the (chain, pair) EMA state and returns the
// clamped thresholds, optionally overlaid with feedback and a remote
// override.
func (m *Model) Evaluate(ctx context.Context, sample domain.AdaptiveSample, feedback *FeedbackSignal) domain.AdaptiveResult {
	key := domain.PairKey{ChainID: sample.ChainID, DebtSymbol: sample.DebtSymbol, CollateralSymbol: sample.CollateralSymbol}

	gap := sample.ObservedGapBps
	if gap < 0 {
		gap = 0
	}
	gapDec := decimal.NewFromInt(gap)
	alpha := decimal.NewFromFloat(Alpha)

	m.mu.Lock()
	st, ok := m.states[key]
	if !ok {
		st = &pairState{}
		m.states[key] = st
	}
	first := !st.init
	if !st.init {
		st.emaGap = gapDec
		st.emaVol = decimal.Zero
		st.init = true
	} else {
		delta := gapDec.Sub(st.emaGap)
		st.emaGap = st.emaGap.Add(alpha.Mul(delta))
		absDelta := delta.Abs().Sub(st.emaVol)
		st.emaVol = st.emaVol.Add(alpha.Mul(absDelta))
	}
	vol, _ := st.emaVol.Float64()
	m.mu.Unlock()

	result := computeThresholds(sample, vol)
	if first {
		// The first sample has no volatility history, so it keeps the base
		// thresholds.
		result.HealthFactorMax = sample.BaseHealthFactorMax
		result.GapCapBps = sample.BaseGapCapBps
	}

	if feedback == nil {
		feedback = m.storedFeedback(key)
	}
	if feedback != nil {
		result = applyFeedback(result, sample, *feedback)
	}

	if m.remoteURL != "" {
		if remote, err := m.postRemote(ctx, sample, result); err == nil {
			remote.Volatility = result.Volatility
			return remote
		} else {
			m.warnOnce(err)
		}
	}

	return result
}

func computeThresholds(sample domain.AdaptiveSample, vol float64) domain.AdaptiveResult {
	base := sample.BaseHealthFactorMax
	hfMax := base
	switch {
	case vol > highVolBps:
		hfMax = clampF(base-0.02, 0.9*base, base)
	case vol < lowVolBps:
		hfMax = clampF(base+0.01, base, 1.05*base)
	}

	baseGap := int64(sample.BaseGapCapBps)
	var gapCapBps int64
	switch {
	case vol > highVolBps:
		gapCapBps = clampI(round(0.85*float64(baseGap)), 20, baseGap)
	case vol < lowVolBps:
		gapCapBps = clampI(round(1.15*float64(baseGap)), 20, baseGap+100)
	default:
		gapCapBps = baseGap
	}

	return domain.AdaptiveResult{
		HealthFactorMax: hfMax,
		GapCapBps:       uint32(gapCapBps),
		Volatility:      vol,
	}
}

// applyFeedback implements spec.md §4.G's feedback overlay: widen under
// "missing opportunities" or "frequent gap skips", tighten under "high
// error rate", then nudge HF by modelDrift's polarity.
func applyFeedback(result domain.AdaptiveResult, sample domain.AdaptiveSample, fb FeedbackSignal) domain.AdaptiveResult {
	base := sample.BaseHealthFactorMax
	baseGap := sample.BaseGapCapBps

	if fb.HitRate < 0.5 && fb.OpportunityCostUSD > 50 {
		result.HealthFactorMax = clampF(result.HealthFactorMax+0.01, base, 1.05*base)
		result.GapCapBps = uint32(clampI(int64(result.GapCapBps)+10, 20, int64(baseGap)+100))
	}
	if fb.GapSkipRate > 0.3 && fb.OpportunityCostUSD > 25 {
		result.GapCapBps = uint32(clampI(int64(result.GapCapBps)+10, 20, int64(baseGap)+100))
	}
	if fb.ErrorRate > 0.2 {
		result.HealthFactorMax = clampF(result.HealthFactorMax-0.01, 0.9*base, base)
		result.GapCapBps = uint32(clampI(int64(result.GapCapBps)-10, 20, int64(baseGap)+100))
	}

	if fb.ModelDrift > 0 {
		result.HealthFactorMax = clampF(result.HealthFactorMax+0.01, 0.9*base, 1.05*base)
	} else if fb.ModelDrift < 0 {
		result.HealthFactorMax = clampF(result.HealthFactorMax-0.01, 0.9*base, 1.05*base)
	}

	return result
}

type remotePayload struct {
	ChainID          uint64  `json:"chainId"`
	DebtSymbol       string  `json:"debtSymbol"`
	CollateralSymbol string  `json:"collateralSymbol"`
	ObservedGapBps   int64   `json:"observedGapBps"`
	LocalResult      domain.AdaptiveResult `json:"localResult"`
}

func (m *Model) postRemote(ctx context.Context, sample domain.AdaptiveSample, local domain.AdaptiveResult) (domain.AdaptiveResult, error) {
	payload := remotePayload{
		ChainID: sample.ChainID, DebtSymbol: sample.DebtSymbol, CollateralSymbol: sample.CollateralSymbol,
		ObservedGapBps: sample.ObservedGapBps, LocalResult: local,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.AdaptiveResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.remoteURL, bytes.NewReader(body))
	if err != nil {
		return domain.AdaptiveResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return domain.AdaptiveResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.AdaptiveResult{}, fmt.Errorf("adaptive: remote returned status %d", resp.StatusCode)
	}

	var out domain.AdaptiveResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.AdaptiveResult{}, err
	}
	return out, nil
}

func (m *Model) warnOnce(err error) {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()
	if time.Since(m.lastWarnAt) < time.Minute {
		return
	}
	m.lastWarnAt = time.Now()
	m.log.Warn("adaptive thresholds remote mode failed, using local output", "error", err)
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
