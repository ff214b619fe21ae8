package executor

import (
	"context"
	"sync"
	"time"
)

// memRedisClient is a minimal functional in-process stand-in for
// redis.Client, covering just enough (SetNX/Del) to exercise the
// Redis-backed nonce-lock path deterministically in tests.
type memRedisClient struct {
	mu   sync.Mutex
	data map[string]struct{}
}

func (m *memRedisClient) ensure() {
	if m.data == nil {
		m.data = make(map[string]struct{})
	}
}

func (m *memRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = struct{}{}
	return true, nil
}

func (m *memRedisClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (m *memRedisClient) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (m *memRedisClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	return 0, nil
}
func (m *memRedisClient) HSet(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *memRedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	return "", nil
}
func (m *memRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return nil, nil
}
func (m *memRedisClient) HDel(ctx context.Context, key string, fields ...string) error { return nil }
func (m *memRedisClient) LPush(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *memRedisClient) RPush(ctx context.Context, key string, values ...interface{}) error {
	return nil
}
func (m *memRedisClient) LPop(ctx context.Context, key string) (string, error) { return "", nil }
func (m *memRedisClient) RPop(ctx context.Context, key string) (string, error) { return "", nil }
func (m *memRedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}
func (m *memRedisClient) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return nil
}
func (m *memRedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return nil, nil
}
func (m *memRedisClient) SRem(ctx context.Context, key string, members ...interface{}) error {
	return nil
}
func (m *memRedisClient) ZAdd(ctx context.Context, key string, members ...interface{}) error {
	return nil
}
func (m *memRedisClient) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, nil
}
func (m *memRedisClient) ZRem(ctx context.Context, key string, members ...interface{}) error {
	return nil
}
func (m *memRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *memRedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, nil
}
func (m *memRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }
func (m *memRedisClient) ExpireNX(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *memRedisClient) Ping(ctx context.Context) error { return nil }
func (m *memRedisClient) Close() error                   { return nil }
