package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/usecase"
)

// JanitorWorker periodically sweeps old terminal jobs via the use case.
type JanitorWorker struct {
	interval       time.Duration
	retentionHours float64
	uc             usecase.JanitorUseCase
	log            *zerolog.Logger
}

func NewJanitorWorker(interval time.Duration, retentionHours float64, uc usecase.JanitorUseCase, logger *zerolog.Logger) *JanitorWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	l := logger.With().Str("component", "JanitorWorker").Logger()
	return &JanitorWorker{interval: interval, retentionHours: retentionHours, uc: uc, log: &l}
}

func (w *JanitorWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Float64("retention_hours", w.retentionHours).Msg("Starting janitor worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping janitor worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *JanitorWorker) tick(ctx context.Context) {
	res, err := w.uc.Sweep(ctx, usecase.SweepOptions{RetentionHours: w.retentionHours})
	if err != nil {
		w.log.Error().Err(err).Msg("janitor sweep error")
		return
	}
	if res.RemovedCount > 0 {
		w.log.Info().Int("removed", res.RemovedCount).Int("remaining", res.RemainingCount).Msg("old jobs removed")
	}
	// refreshes the jobs-by-status gauge
	if _, err := w.uc.Stats(ctx, w.retentionHours); err != nil {
		w.log.Warn().Err(err).Msg("janitor stats error")
	}
}
