package jobrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/metrics"
	red "blog-job-pipeline/internal/infra/redis"
)

var _ repository.JobRepository = (*jobRepoCacheDecorator)(nil)

// jobRepoCacheDecorator caches single-job reads for status polling. Writes go
// to the store first and then drop the cached copy. A miss racing a write can
// refill the old copy for one TTL, so only read-only pollers may use it.
type jobRepoCacheDecorator struct {
	inner  repository.JobRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewJobRepoCacheDecorator(inner repository.JobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.JobRepository {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &jobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(id string) string { return "job:" + id }

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, id string) (*model.BlogJob, error) {
	val, err := d.cache.Get(ctx, cacheKey(id))
	if err == nil {
		var doc jobDocument
		if json.Unmarshal([]byte(val), &doc) == nil {
			metrics.IncCacheRequest("job_status", "hit")
			return doc.toModel(), nil
		}
	} else if !red.IsMiss(err) {
		d.logger.Warn().Err(err).Str("tracking_id", id).Msg("job cache read failed")
	}

	metrics.IncCacheRequest("job_status", "miss")
	job, err := d.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(toDoc(job)); err == nil {
		if err := d.cache.Set(ctx, cacheKey(id), b, d.ttl); err != nil {
			d.logger.Warn().Err(err).Str("tracking_id", id).Msg("job cache write failed")
		}
	}
	return job, nil
}

func (d *jobRepoCacheDecorator) Create(ctx context.Context, job *model.BlogJob) error {
	return d.inner.Create(ctx, job)
}

func (d *jobRepoCacheDecorator) Save(ctx context.Context, job *model.BlogJob, expected ...model.JobStatus) error {
	err := d.inner.Save(ctx, job, expected...)
	d.invalidate(ctx, job.TrackingID)
	return err
}

func (d *jobRepoCacheDecorator) Delete(ctx context.Context, id string) error {
	err := d.inner.Delete(ctx, id)
	d.invalidate(ctx, id)
	return err
}

func (d *jobRepoCacheDecorator) DeleteIf(ctx context.Context, id string, f repository.JobFilter) error {
	err := d.inner.DeleteIf(ctx, id, f)
	d.invalidate(ctx, id)
	return err
}

// List is never cached: it backs the janitor and admin views.
func (d *jobRepoCacheDecorator) List(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error) {
	return d.inner.List(ctx, f)
}

func (d *jobRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, cacheKey(id)); err != nil {
		d.logger.Warn().Err(err).Str("tracking_id", id).Msg("job cache invalidation failed")
	}
}
