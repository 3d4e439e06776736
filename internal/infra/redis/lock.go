// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/adapter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ adapter.JobLocker = (*JobLocker)(nil)

// JobLocker is a SET NX lock per tracking id. The TTL bounds how long a
// crashed holder can block others.
type JobLocker struct {
	cli    RedisClient
	ttl    time.Duration
	poll   time.Duration
	logger *zerolog.Logger
}

func NewJobLocker(c RedisClient, ttl time.Duration, logger *zerolog.Logger) *JobLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := logger.With().Str("component", "job_locker").Logger()
	return &JobLocker{cli: c, ttl: ttl, poll: 50 * time.Millisecond, logger: &l}
}

// maxLockErrors is how many consecutive SET NX failures Lock tolerates before
// reporting Redis as unavailable.
const maxLockErrors = 5

func lockKey(trackingID string) string { return "job_lock:" + trackingID }

func (l *JobLocker) Lock(ctx context.Context, trackingID string) (func(), error) {
	key := lockKey(trackingID)
	token := uuid.NewString()
	failures := 0
	for {
		ok, err := l.cli.SetNX(ctx, key, token, l.ttl)
		if err == nil && ok {
			break
		}
		if err != nil {
			failures++
			if failures >= maxLockErrors {
				l.logger.Warn().Err(err).Str("tracking_id", trackingID).Int("attempts", failures).Msg("lock unavailable")
				return nil, fmt.Errorf("%w: job lock: %v", domain.ErrStoreUnavailable, err)
			}
		} else {
			failures = 0
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
	return func() {
		// the caller's ctx may already be cancelled
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := l.cli.CompareAndDelete(uctx, key, token); err != nil {
			l.logger.Warn().Err(err).Str("tracking_id", trackingID).Msg("unlock failed; lock will expire")
		}
	}, nil
}
