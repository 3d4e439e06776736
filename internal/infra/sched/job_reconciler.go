package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/metrics"
	"blog-job-pipeline/internal/usecase"
)

// JobReconciler periodically scans for stalled non-terminal jobs and resumes
// them. This covers runs lost when the process crashed mid-stage.
type JobReconciler struct {
	uc         usecase.PipelineUseCase
	jobs       repository.JobRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how long a job must be untouched to count as stalled
	now        func() time.Time
	log        *zerolog.Logger
}

const reconcileBatch = 200

var inFlightStatuses = []model.JobStatus{
	model.JobStatusInit, model.JobStatusTopicReady, model.JobStatusDrafting, model.JobStatusDrafted,
	model.JobStatusRating, model.JobStatusRated, model.JobStatusRewriting,
}

func NewJobReconciler(uc usecase.PipelineUseCase, jobs repository.JobRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *JobReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "JobReconciler").Logger()
	return &JobReconciler{uc: uc, jobs: jobs, interval: interval, staleAfter: staleAfter, now: time.Now, log: &l}
}

func (w *JobReconciler) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting job reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

// tick returns how many jobs were handed back to the pipeline.
func (w *JobReconciler) tick(ctx context.Context) int {
	cutoff := w.now().Add(-w.staleAfter)
	stalled, err := w.jobs.List(ctx, repository.JobFilter{Statuses: inFlightStatuses, UpdatedBefore: cutoff, Limit: reconcileBatch})
	if err != nil {
		w.log.Error().Err(err).Msg("list stalled jobs failed")
		return 0
	}
	resumed := 0
	for _, job := range stalled {
		if w.uc.IsRunning(job.TrackingID) {
			continue
		}
		err := w.uc.Resume(ctx, job.TrackingID)
		switch {
		case err == nil:
			resumed++
			w.log.Info().Str("tracking_id", job.TrackingID).Str("status", string(job.Status)).Msg("stalled job resumed")
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
			// finished, started or deleted since the scan
		default:
			w.log.Warn().Err(err).Str("tracking_id", job.TrackingID).Msg("resume failed")
		}
	}
	if resumed > 0 {
		metrics.IncJobsRecovered(resumed)
	}
	return resumed
}
