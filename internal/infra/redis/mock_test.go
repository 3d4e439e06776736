//go:build !integration

package redis

import (
	"context"
	"time"
)

type mockRedisClient struct {
	SetNXFunc            func(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	IncrFunc             func(ctx context.Context, key string) (int64, error)
	ExpireFunc           func(ctx context.Context, key string, expiration time.Duration) error
	CompareAndDeleteFunc func(ctx context.Context, key, value string) (bool, error)
}

func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return m.SetNXFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	if m.ExpireFunc == nil {
		return nil
	}
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error { return nil }
func (m *mockRedisClient) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	return m.CompareAndDeleteFunc(ctx, key, value)
}
func (m *mockRedisClient) Close() error { return nil }
