package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dimajoyti/aave-sentinel/pkg/logger"
	"github.com/dimajoyti/aave-sentinel/pkg/redis"
)

// lockTTL bounds how long a nonce lock can be held before it self-expires,
// so a crashed holder can never wedge a sender permanently.
const lockTTL = 30 * time.Second

const lockPollInterval = 50 * time.Millisecond

// NonceLock serializes concurrent submissions for the same (chainId,
// sender), per spec.md §4.I's "distributed per-sender nonce lock". It
// prefers Redis (SETNX-based) and falls back to an in-process mutex per key
// when Redis is unavailable or unconfigured.
type NonceLock struct {
	redisClient redis.Client
	log         *logger.Logger

	mu    sync.Mutex
	local map[string]*sync.Mutex
}

// NewNonceLock builds a NonceLock. redisClient may be nil.
func NewNonceLock(redisClient redis.Client, log *logger.Logger) *NonceLock {
	return &NonceLock{
		redisClient: redisClient,
		log:         log.Named("executor.noncelock"),
		local:       make(map[string]*sync.Mutex),
	}
}

// Lock blocks until it holds the (chainId, sender) lock or ctx is done, and
// returns an unlock function the caller must invoke exactly once.
func (n *NonceLock) Lock(ctx context.Context, chainID uint64, sender string) (func(), error) {
	key := fmt.Sprintf("noncelock:%d:%s", chainID, sender)

	if n.redisClient == nil {
		mtx := n.localMutex(key)
		mtx.Lock()
		return mtx.Unlock, nil
	}

	for {
		acquired, err := n.redisClient.SetNX(ctx, key, "1", lockTTL)
		if err != nil {
			n.log.Warn("redis nonce lock unavailable, falling back to in-memory", "key", key, "error", err)
			mtx := n.localMutex(key)
			mtx.Lock()
			return mtx.Unlock, nil
		}
		if acquired {
			return func() {
				if err := n.redisClient.Del(context.Background(), key); err != nil {
					n.log.Warn("failed to release nonce lock", "key", key, "error", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (n *NonceLock) localMutex(key string) *sync.Mutex {
	n.mu.Lock()
	defer n.mu.Unlock()
	mtx, ok := n.local[key]
	if !ok {
		mtx = &sync.Mutex{}
		n.local[key] = mtx
	}
	return mtx
}
