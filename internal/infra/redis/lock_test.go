//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
)

func TestJobLocker(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("should retry until the key is free and release with the same token", func(t *testing.T) {
		attempts := 0
		var setToken, delToken, delKey string
		cli := &mockRedisClient{
			SetNXFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
				attempts++
				setToken = value.(string)
				return attempts >= 3, nil
			},
			CompareAndDeleteFunc: func(ctx context.Context, key, value string) (bool, error) {
				delKey, delToken = key, value
				return true, nil
			},
		}
		l := NewJobLocker(cli, time.Minute, &logger)
		l.poll = time.Millisecond

		unlock, err := l.Lock(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("expected lock, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
		unlock()
		if delKey != "job_lock:job-1" || delToken != setToken {
			t.Errorf("unlock used key=%q token=%q, want token %q", delKey, delToken, setToken)
		}
	})

	t.Run("should give up when the context ends", func(t *testing.T) {
		cli := &mockRedisClient{
			SetNXFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
				return false, nil
			},
		}
		l := NewJobLocker(cli, time.Minute, &logger)
		l.poll = time.Millisecond
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := l.Lock(ctx, "job-1"); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("should fail fast when redis keeps erroring", func(t *testing.T) {
		attempts := 0
		cli := &mockRedisClient{
			SetNXFunc: func(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
				attempts++
				return false, errors.New("connection refused")
			},
		}
		l := NewJobLocker(cli, time.Minute, &logger)
		l.poll = time.Millisecond

		done := make(chan error, 1)
		go func() {
			_, err := l.Lock(context.Background(), "job-1")
			done <- err
		}()
		select {
		case err := <-done:
			if !errors.Is(err, domain.ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Lock did not return while redis was down")
		}
		if attempts != maxLockErrors {
			t.Errorf("expected %d attempts, got %d", maxLockErrors, attempts)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("should allow up to the limit within a window", func(t *testing.T) {
		counts := map[string]int64{}
		expired := 0
		cli := &mockRedisClient{
			IncrFunc: func(ctx context.Context, key string) (int64, error) {
				counts[key]++
				return counts[key], nil
			},
			ExpireFunc: func(ctx context.Context, key string, d time.Duration) error {
				expired++
				return nil
			},
		}
		rl := NewRateLimiter(cli)
		key := ClientActionKey("10.0.0.1", "create_job")
		for i := 0; i < 3; i++ {
			ok, err := rl.Allow(context.Background(), key, 3, time.Minute)
			if err != nil || !ok {
				t.Fatalf("request %d should be allowed: %v %v", i+1, ok, err)
			}
		}
		ok, _ := rl.Allow(context.Background(), key, 3, time.Minute)
		if ok {
			t.Error("fourth request should be rejected")
		}
		if expired != 1 {
			t.Errorf("window should be set once, got %d", expired)
		}
	})
}
