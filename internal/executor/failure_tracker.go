package executor

import (
	"sync"
	"time"
)

// minAttemptsForAlert and alertCooldown are spec.md §4.I's fail-rate alert
// gate: attempts >= 5, ratio > failRateCap, at most one alert per 15 min.
const (
	minAttemptsForAlert = 5
	alertCooldown       = 15 * time.Minute
)

// failureTracker accumulates submission outcomes and raises alertFn when
// the rolling failure ratio crosses failRateCap.
type failureTracker struct {
	mu sync.Mutex

	attempts int
	failures int

	alertFn     func(string)
	lastAlertAt time.Time
}

func newFailureTracker(alertFn func(string)) *failureTracker {
	return &failureTracker{alertFn: alertFn}
}

func (f *failureTracker) recordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
}

func (f *failureTracker) recordFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	f.failures++
}

// CheckAlert evaluates the current ratio against failRateCap and fires
// alertFn (subject to the 15-minute cooldown) when it is exceeded. Called
// after recordFailure by the caller that owns the RiskConfig.
func (f *failureTracker) CheckAlert(failRateCap float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.attempts < minAttemptsForAlert || f.alertFn == nil {
		return
	}
	ratio := float64(f.failures) / float64(f.attempts)
	if ratio <= failRateCap {
		return
	}
	if time.Since(f.lastAlertAt) < alertCooldown {
		return
	}
	f.lastAlertAt = time.Now()
	f.alertFn("executor fail-rate exceeded cap")
}
