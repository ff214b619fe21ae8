package control

import "sync"

// SessionCaps tracks cumulative sent executions and cumulative planned
// notional USD for the life of one runner process, per spec.md §4.H.
// Once either cap would be exceeded, Allow reports false and the caller is
// expected to stop accepting new work and drain gracefully.
type SessionCaps struct {
	mu sync.Mutex

	maxExecutions int
	maxNotionalUSD float64

	sentExecutions  int
	plannedNotional float64
}

// NewSessionCaps builds a SessionCaps. A zero maxExecutions or
// maxNotionalUSD disables that cap.
func NewSessionCaps(maxExecutions int, maxNotionalUSD float64) *SessionCaps {
	return &SessionCaps{maxExecutions: maxExecutions, maxNotionalUSD: maxNotionalUSD}
}

// Allow reports whether committing one more execution of notionalUSD stays
// within both caps, and if so records it. A rejected call does not commit:
// the caller is expected to stop, not retry with a smaller amount.
func (s *SessionCaps) Allow(notionalUSD float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxExecutions > 0 && s.sentExecutions+1 > s.maxExecutions {
		return false
	}
	if s.maxNotionalUSD > 0 && s.plannedNotional+notionalUSD > s.maxNotionalUSD {
		return false
	}
	s.sentExecutions++
	s.plannedNotional += notionalUSD
	return true
}

// Snapshot returns the current cumulative counters, for status reporting.
func (s *SessionCaps) Snapshot() (sentExecutions int, plannedNotionalUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sentExecutions, s.plannedNotional
}
