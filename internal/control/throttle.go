// Package control implements spec.md §4.H: the borrower and edge fixed-
// window throttles, the kill switch, and the session caps that gate the
// runner independently of the scoring pipeline in internal/policy.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dimajoyti/aave-sentinel/pkg/logger"
	"github.com/dimajoyti/aave-sentinel/pkg/redis"
)

// BorrowerWindow and EdgeWindow are the fixed window sizes spec.md §4.H
// names for the two throttles.
const (
	BorrowerWindow = time.Hour
	EdgeWindow     = 5 * time.Minute

	// DefaultEdgeLimit is the default per-window cap on the arbitrage edge
	// throttle when a chain config leaves it unset.
	DefaultEdgeLimit = 6
)

// Throttle is a Redis-backed fixed-window counter with an in-memory
// fallback for when Redis is unreachable. A key's window opens at its first
// increment and its count resets only when that window expires; the window
// does not slide. One instance covers both the
// borrower window and the edge window; they differ only by key prefix,
// window size, and limit.
type Throttle struct {
	redisClient redis.Client
	log         *logger.Logger

	mu   sync.Mutex
	mem  map[string]*memCounter
}

type memCounter struct {
	count   int64
	resetAt time.Time
}

// New builds a Throttle. redisClient may be nil, which pins the throttle to
// its in-memory fallback (used in tests and in single-process deployments
// without Redis configured).
func New(redisClient redis.Client, log *logger.Logger) *Throttle {
	return &Throttle{
		redisClient: redisClient,
		log:         log.Named("control.throttle"),
		mem:         make(map[string]*memCounter),
	}
}

// BorrowerAllowed increments the (chainId, borrower) counter and reports
// whether the caller is still under limit for this hour-long window.
func (t *Throttle) BorrowerAllowed(ctx context.Context, chainID uint64, borrower string, limit int) (bool, error) {
	key := fmt.Sprintf("throttle:borrower:%d:%s", chainID, borrower)
	return t.allowed(ctx, key, BorrowerWindow, limit)
}

// EdgeAllowed increments the (chainId, pairId) counter used to rate-limit
// how often the arbitrage fabric requotes the same edge.
func (t *Throttle) EdgeAllowed(ctx context.Context, chainID uint64, pairID string, limit int) (bool, error) {
	if limit <= 0 {
		limit = DefaultEdgeLimit
	}
	key := fmt.Sprintf("throttle:edge:%d:%s", chainID, pairID)
	return t.allowed(ctx, key, EdgeWindow, limit)
}

// allowed increments key's counter, arming its window expiry with EXPIRE NX
// the first time the key is created so later increments inside the same
// window never push the deadline out, then reports count <= limit.
func (t *Throttle) allowed(ctx context.Context, key string, window time.Duration, limit int) (bool, error) {
	count, err := t.incr(ctx, key, window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

func (t *Throttle) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if t.redisClient != nil {
		count, err := t.redisClient.Incr(ctx, key)
		if err != nil {
			t.log.Warn("redis throttle incr failed, falling back to in-memory", "key", key, "error", err)
			return t.incrMem(key, window), nil
		}
		if count == 1 {
			if _, err := t.redisClient.ExpireNX(ctx, key, window); err != nil {
				t.log.Warn("redis throttle expire-nx failed", "key", key, "error", err)
			}
		}
		return count, nil
	}
	return t.incrMem(key, window), nil
}

func (t *Throttle) incrMem(key string, window time.Duration) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	c, ok := t.mem[key]
	if !ok || now.After(c.resetAt) {
		c = &memCounter{count: 0, resetAt: now.Add(window)}
		t.mem[key] = c
	}
	c.count++
	return c.count
}
