package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/infra/metrics"
	"blog-job-pipeline/internal/usecase/stage"
)

var errRunStopped = errors.New("job run stopped")

// jobRun owns one job while this process executes or retries it. Every write
// goes through save, which serializes the sequential stages and the image
// goroutine and conditions the store update on the last written status.
type jobRun struct {
	uc      *pipelineUC
	id      string
	mu      sync.Mutex // guards job
	job     *model.BlogJob
	stopped atomic.Bool
}

func (r *jobRun) stop() { r.stopped.Store(true) }

func (r *jobRun) snapshot() *model.BlogJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Clone()
}

func (r *jobRun) logger(ctx context.Context) *zerolog.Logger {
	return logging.With(ctx, r.uc.log)
}

// commit is save for a live run: it refuses once the run was stopped or the
// job became terminal.
func (r *jobRun) commit(ctx context.Context, mutate func(j *model.BlogJob) error) error {
	return r.save(ctx, true, mutate)
}

func (r *jobRun) save(ctx context.Context, live bool, mutate func(j *model.BlogJob) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if live && (r.stopped.Load() || r.job.IsTerminal()) {
		return errRunStopped
	}
	next := r.job.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	prev := r.job.Status
	err := r.uc.withStoreRetry(ctx, func() error { return r.uc.jobs.Save(ctx, next, prev) })
	if errors.Is(err, domain.ErrPreconditionFailed) || errors.Is(err, domain.ErrNotFound) {
		// cancelled, deleted or otherwise changed behind our back
		r.stop()
		if !live {
			return fmt.Errorf("job %s changed while saving: %w", r.id, err)
		}
		return errRunStopped
	}
	if err != nil {
		return err
	}
	r.job = next
	return nil
}

func (r *jobRun) execute(ctx context.Context) error {
	ctx = logging.WithTrackingID(ctx, r.id)
	log := r.logger(ctx)
	log.Debug().Str("status", string(r.snapshot().Status)).Msg("job run started")

	var images *imageTask
	defer func() {
		if images != nil {
			<-images.done
		}
	}()

	for {
		job := r.snapshot()
		if r.stopped.Load() || job.IsTerminal() {
			return nil
		}
		if images == nil && needsImages(job) {
			images = r.startImages(ctx, job.Title)
		}

		var err error
		next, _ := model.NextStage(job.Status)
		switch {
		case job.Status == model.JobStatusRewriting && job.LastStage == model.StageRewriter:
			err = r.complete(ctx, images)
		case next == model.StageTopicRefiner:
			err = r.refine(ctx, job)
		case next == model.StageDrafter:
			err = r.draft(ctx, job)
		case next == model.StageRater:
			err = r.rate(ctx, job)
		case next == model.StageRewriter:
			err = r.rewrite(ctx, job)
		default:
			err = fmt.Errorf("no stage for status %s", job.Status)
		}
		if err != nil {
			return r.halt(ctx, err)
		}
	}
}

func (r *jobRun) halt(ctx context.Context, err error) error {
	log := r.logger(ctx)
	switch {
	case errors.Is(err, errRunStopped):
		log.Info().Msg("job run stopped")
		return nil
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Error().Err(err).Msg("store unavailable, halting run without marking the job")
	default:
		log.Error().Err(err).Msg("job run halted")
	}
	return err
}

func needsImages(job *model.BlogJob) bool {
	return !job.IsTerminal() && len(job.Images) == 0 && reached(job, model.JobStatusDrafted)
}

// observe records stage latency and outcome.
func observe[T any](ctx context.Context, r *jobRun, st model.Stage, start time.Time, out stage.Outcome[T]) stage.Outcome[T] {
	ms := time.Since(start).Milliseconds()
	metrics.ObserveStage(string(st), out.Kind.String(), ms)
	log := r.logger(logging.WithStage(ctx, string(st)))
	var ev *zerolog.Event
	if out.Kind == stage.KindOK {
		ev = log.Info()
	} else {
		ev = log.Warn().Err(out.Err)
	}
	ev.Str("outcome", out.Kind.String()).Int64("latency_ms", ms).Msg("stage finished")
	return out
}

func (r *jobRun) now() time.Time { return r.uc.opts.Now() }

// enter persists the in-flight status of a stage unless already there.
func (r *jobRun) enter(ctx context.Context, st model.Stage, msg string) error {
	running, ok := st.RunningStatus()
	if !ok {
		return nil
	}
	return r.commit(ctx, func(j *model.BlogJob) error {
		if j.Status == running {
			return nil
		}
		return j.Advance(running, msg, r.now())
	})
}

func (r *jobRun) fail(ctx context.Context, st model.Stage, cause error) error {
	r.logger(logging.WithStage(ctx, string(st))).Warn().Err(cause).Msg("stage failed, marking job failed")
	err := r.commit(ctx, func(j *model.BlogJob) error {
		return j.Fail(st, model.FailureReasonStage, publicMessage(st, cause), r.now())
	})
	if err == nil {
		metrics.IncJobFinished(string(model.JobStatusFailed), model.FailureReasonStage)
	}
	return err
}

func stageMessage(st model.Stage, kind stage.Kind, cause error, okMsg string) string {
	if kind == stage.KindDegraded {
		return publicMessage(st, cause) + " (degraded output kept)"
	}
	return okMsg
}

func (r *jobRun) refine(ctx context.Context, job *model.BlogJob) error {
	start := time.Now()
	out := observe(ctx, r, model.StageTopicRefiner, start, r.uc.stages.TopicRefiner.Refine(ctx, job.Topic))
	if out.Kind == stage.KindFailed {
		return r.fail(ctx, model.StageTopicRefiner, out.Err)
	}
	return r.commit(ctx, func(j *model.BlogJob) error {
		j.Title = out.Value
		j.LastStage = model.StageTopicRefiner
		return j.Advance(model.JobStatusTopicReady, "Topic refined", r.now())
	})
}

func (r *jobRun) draft(ctx context.Context, job *model.BlogJob) error {
	if err := r.enter(ctx, model.StageDrafter, "Drafting post"); err != nil {
		return err
	}
	start := time.Now()
	out := observe(ctx, r, model.StageDrafter, start, r.uc.stages.Drafter.Draft(ctx, job.Title, job.Settings))
	if out.Kind == stage.KindFailed {
		return r.fail(ctx, model.StageDrafter, out.Err)
	}
	return r.commit(ctx, func(j *model.BlogJob) error {
		j.Content = out.Value.Body
		j.WordCount = out.Value.WordCount
		j.LastStage = model.StageDrafter
		j.SetDegraded(model.StageDrafter, out.Kind == stage.KindDegraded)
		return j.Advance(model.JobStatusDrafted, stageMessage(model.StageDrafter, out.Kind, out.Err, "Draft ready"), r.now())
	})
}

func (r *jobRun) rate(ctx context.Context, job *model.BlogJob) error {
	if err := r.enter(ctx, model.StageRater, "Rating draft"); err != nil {
		return err
	}
	start := time.Now()
	out := observe(ctx, r, model.StageRater, start, r.uc.stages.Rater.Rate(ctx, job.Content, job.Settings.Tone))
	if out.Kind == stage.KindFailed {
		return r.fail(ctx, model.StageRater, out.Err)
	}
	return r.commit(ctx, func(j *model.BlogJob) error {
		rating := out.Value
		j.Rating = &rating
		j.LastStage = model.StageRater
		j.SetDegraded(model.StageRater, out.Kind == stage.KindDegraded)
		return j.Advance(model.JobStatusRated, stageMessage(model.StageRater, out.Kind, out.Err, fmt.Sprintf("Rated %d/10", rating.Score)), r.now())
	})
}

// rewrite stores the revised body and leaves the job in rewriting; complete
// moves it on once the images are in.
func (r *jobRun) rewrite(ctx context.Context, job *model.BlogJob) error {
	if err := r.enter(ctx, model.StageRewriter, "Rewriting with feedback"); err != nil {
		return err
	}
	start := time.Now()
	out := observe(ctx, r, model.StageRewriter, start, r.uc.stages.Rewriter.Rewrite(ctx, job.Content, feedback(job), job.Settings, job.Title))
	if out.Kind == stage.KindFailed {
		return r.fail(ctx, model.StageRewriter, out.Err)
	}
	return r.commit(ctx, func(j *model.BlogJob) error {
		j.Content = out.Value.Body
		j.WordCount = out.Value.WordCount
		j.LastStage = model.StageRewriter
		j.SetDegraded(model.StageRewriter, out.Kind == stage.KindDegraded)
		j.Message = stageMessage(model.StageRewriter, out.Kind, out.Err, "Rewrite ready, waiting for images")
		j.UpdatedAt = r.now().UTC()
		return nil
	})
}

func feedback(job *model.BlogJob) string {
	if job.Rating == nil {
		return ""
	}
	return job.Rating.Review
}

func (r *jobRun) complete(ctx context.Context, images *imageTask) error {
	if images != nil {
		select {
		case <-images.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	err := r.commit(ctx, func(j *model.BlogJob) error {
		return j.Advance(model.JobStatusCompleted, "Blog post completed", r.now())
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// nothing publishable: empty body after a degraded draft and rewrite
		return r.fail(ctx, model.StageRewriter, err)
	}
	if err == nil {
		metrics.IncJobFinished(string(model.JobStatusCompleted), "")
		r.logger(ctx).Info().Msg("job completed")
	}
	return err
}

type imageTask struct {
	done chan struct{}
}

// startImages runs ImageFinder next to the Rater/Rewriter sequence. Its URLs
// are saved as soon as they arrive; a failure fails the job immediately.
func (r *jobRun) startImages(ctx context.Context, title string) *imageTask {
	t := &imageTask{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		if err := r.findImages(ctx, title); err != nil && !errors.Is(err, errRunStopped) {
			r.logger(ctx).Error().Err(err).Msg("saving images failed")
		}
	}()
	return t
}

func (r *jobRun) findImages(ctx context.Context, title string) error {
	start := time.Now()
	out := observe(ctx, r, model.StageImageFinder, start, r.uc.stages.ImageFinder.Find(ctx, title))
	if out.Kind == stage.KindFailed {
		return r.fail(ctx, model.StageImageFinder, out.Err)
	}
	return r.commit(ctx, func(j *model.BlogJob) error {
		j.Images = out.Value
		j.Message = fmt.Sprintf("Found %d images", len(out.Value))
		j.UpdatedAt = r.now().UTC()
		return nil
	})
}

// retry runs one stage synchronously against the stored fields and overwrites
// its outputs.
func (r *jobRun) retry(ctx context.Context, st model.Stage) (*model.BlogJob, error) {
	job := r.snapshot()
	start := time.Now()

	var (
		kind  stage.Kind
		cause error
		apply func(j *model.BlogJob)
	)
	switch st {
	case model.StageTopicRefiner:
		out := observe(ctx, r, st, start, r.uc.stages.TopicRefiner.Refine(ctx, job.Topic))
		kind, cause = out.Kind, out.Err
		apply = func(j *model.BlogJob) { j.Title = out.Value }
	case model.StageDrafter:
		out := observe(ctx, r, st, start, r.uc.stages.Drafter.Draft(ctx, job.Title, job.Settings))
		kind, cause = out.Kind, out.Err
		apply = func(j *model.BlogJob) { j.Content, j.WordCount = out.Value.Body, out.Value.WordCount }
	case model.StageRater:
		out := observe(ctx, r, st, start, r.uc.stages.Rater.Rate(ctx, job.Content, job.Settings.Tone))
		kind, cause = out.Kind, out.Err
		apply = func(j *model.BlogJob) { rating := out.Value; j.Rating = &rating }
	case model.StageRewriter:
		out := observe(ctx, r, st, start, r.uc.stages.Rewriter.Rewrite(ctx, job.Content, feedback(job), job.Settings, job.Title))
		kind, cause = out.Kind, out.Err
		apply = func(j *model.BlogJob) { j.Content, j.WordCount = out.Value.Body, out.Value.WordCount }
	case model.StageImageFinder:
		out := observe(ctx, r, st, start, r.uc.stages.ImageFinder.Find(ctx, job.Title))
		kind, cause = out.Kind, out.Err
		apply = func(j *model.BlogJob) { j.Images = out.Value }
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidArgument, st)
	}

	now := r.now()
	err := r.save(ctx, false, func(j *model.BlogJob) error {
		if kind == stage.KindFailed {
			msg := publicMessage(st, cause)
			if j.Status != model.JobStatusFailed {
				return j.Fail(st, model.FailureReasonStage, msg, now)
			}
			at := effectiveStatus(j)
			j.Error = &model.JobError{Stage: st, Reason: model.FailureReasonStage, Message: msg, AtStatus: at}
			j.Message = msg
			j.UpdatedAt = now.UTC()
			return nil
		}
		apply(j)
		if st != model.StageImageFinder {
			j.LastStage = st
		}
		j.SetDegraded(st, kind == stage.KindDegraded)
		msg := stageMessage(st, kind, cause, fmt.Sprintf("%s retried", st))
		target := retryTarget(j, st)
		if j.Status == model.JobStatusFailed {
			return j.Reopen(target, msg, now)
		}
		if target != j.Status {
			return j.Advance(target, msg, now)
		}
		j.Message = msg
		j.UpdatedAt = now.UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := r.snapshot()
	if out.Status == model.JobStatusCompleted {
		metrics.IncJobFinished(string(model.JobStatusCompleted), "")
	}
	r.logger(ctx).Info().Str("status", string(out.Status)).Str("outcome", kind.String()).Msg("stage retried")
	return out, nil
}

// retryTarget is the status after a successful retry: never behind where the
// job already was, and completed once a rewritten post has its images.
func retryTarget(j *model.BlogJob, st model.Stage) model.JobStatus {
	base := effectiveStatus(j)
	switch st {
	case model.StageRewriter:
		base = model.LaterStatus(base, model.JobStatusRewriting)
	case model.StageImageFinder:
	default:
		if done, ok := st.DoneStatus(); ok {
			base = model.LaterStatus(base, done)
		}
	}
	if base == model.JobStatusRewriting && j.LastStage == model.StageRewriter && j.CheckComplete() == nil {
		return model.JobStatusCompleted
	}
	return base
}
