package control

import (
	"context"
	"errors"
	"time"
)

// failingRedisClient implements redis.Client with every method returning an
// error, used to exercise the in-memory fallback path.
type failingRedisClient struct{}

var errFakeRedisDown = errors.New("fake redis: down")

func (f *failingRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) Get(ctx context.Context, key string) (string, error) {
	return "", errFakeRedisDown
}
func (f *failingRedisClient) Del(ctx context.Context, keys ...string) error { return errFakeRedisDown }
func (f *failingRedisClient) Exists(ctx context.Context, keys ...string) (int64, error) {
	return 0, errFakeRedisDown
}
func (f *failingRedisClient) HSet(ctx context.Context, key string, values ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	return "", errFakeRedisDown
}
func (f *failingRedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return nil, errFakeRedisDown
}
func (f *failingRedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) LPush(ctx context.Context, key string, values ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) RPush(ctx context.Context, key string, values ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) LPop(ctx context.Context, key string) (string, error) {
	return "", errFakeRedisDown
}
func (f *failingRedisClient) RPop(ctx context.Context, key string) (string, error) {
	return "", errFakeRedisDown
}
func (f *failingRedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, errFakeRedisDown
}
func (f *failingRedisClient) SAdd(ctx context.Context, key string, members ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	return nil, errFakeRedisDown
}
func (f *failingRedisClient) SRem(ctx context.Context, key string, members ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) ZAdd(ctx context.Context, key string, members ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, errFakeRedisDown
}
func (f *failingRedisClient) ZRem(ctx context.Context, key string, members ...interface{}) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return errFakeRedisDown
}
func (f *failingRedisClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	return 0, errFakeRedisDown
}
func (f *failingRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 0, errFakeRedisDown
}
func (f *failingRedisClient) ExpireNX(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	return false, errFakeRedisDown
}
func (f *failingRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return false, errFakeRedisDown
}
func (f *failingRedisClient) Ping(ctx context.Context) error { return errFakeRedisDown }
func (f *failingRedisClient) Close() error                   { return nil }
