package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/infra/metrics"
	"blog-job-pipeline/internal/infra/worker"
	"blog-job-pipeline/internal/usecase/stage"
)

// Compile-time check
var _ PipelineUseCase = (*pipelineUC)(nil)

// PipelineUseCase drives blog jobs through their stages.
type PipelineUseCase interface {
	// Submit stores a new job in init and schedules its run. A caller-supplied
	// id that already exists returns that id with domain.ErrAlreadyExists.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Cancel(ctx context.Context, trackingID string) (*model.BlogJob, error)
	RetryStage(ctx context.Context, trackingID string, st model.Stage) (*model.BlogJob, error)
	// Resume schedules the remaining stages of an idle non-terminal job.
	Resume(ctx context.Context, trackingID string) error
	IsRunning(trackingID string) bool
	// Drain waits until no run is in flight.
	Drain(ctx context.Context) error
}

type SubmitRequest struct {
	Idea       string
	Settings   model.Settings
	TrackingID string
}

type TopicRefiner interface {
	Refine(ctx context.Context, idea string) stage.Outcome[string]
}

type Drafter interface {
	Draft(ctx context.Context, title string, settings model.Settings) stage.Outcome[stage.Draft]
}

type Rater interface {
	Rate(ctx context.Context, body string, tone model.Tone) stage.Outcome[model.Rating]
}

type Rewriter interface {
	Rewrite(ctx context.Context, body, feedback string, settings model.Settings, title string) stage.Outcome[stage.Draft]
}

type ImageFinder interface {
	Find(ctx context.Context, title string) stage.Outcome[[]string]
}

// Stages bundles the executors used by the pipeline.
type Stages struct {
	TopicRefiner TopicRefiner
	Drafter      Drafter
	Rater        Rater
	Rewriter     Rewriter
	ImageFinder  ImageFinder
}

type PipelineOptions struct {
	StoreRetryAttempts int
	StoreRetryBase     time.Duration
	Now                func() time.Time
	NewID              func() string
}

const maxStoreBackoff = 5 * time.Second

type pipelineUC struct {
	jobs   repository.JobRepository
	stages Stages
	pool   *worker.Pool
	locker adapter.JobLocker
	opts   PipelineOptions
	log    *zerolog.Logger

	mu      sync.Mutex
	running map[string]*jobRun
}

func NewPipelineUseCase(
	jobs repository.JobRepository,
	stages Stages,
	pool *worker.Pool,
	locker adapter.JobLocker,
	opts PipelineOptions,
	logger *zerolog.Logger,
) *pipelineUC {
	if opts.StoreRetryAttempts <= 0 {
		opts.StoreRetryAttempts = 4
	}
	if opts.StoreRetryBase <= 0 {
		opts.StoreRetryBase = 200 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return ulid.Make().String() }
	}
	if locker == nil {
		locker = NewKeyedLocker()
	}
	l := logger.With().Str("component", "pipeline").Logger()
	return &pipelineUC{
		jobs:    jobs,
		stages:  stages,
		pool:    pool,
		locker:  locker,
		opts:    opts,
		log:     &l,
		running: make(map[string]*jobRun),
	}
}

func (uc *pipelineUC) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	defer logging.TraceDuration(uc.log, "PipelineUC.Submit")()

	id := strings.TrimSpace(req.TrackingID)
	if id == "" {
		id = uc.opts.NewID()
	}
	job, err := model.NewBlogJob(id, req.Idea, req.Settings, uc.opts.Now())
	if err != nil {
		return "", err
	}
	err = uc.withStoreRetry(ctx, func() error { return uc.jobs.Create(ctx, job) })
	if errors.Is(err, domain.ErrAlreadyExists) {
		return id, err
	}
	if err != nil {
		return "", err
	}
	metrics.IncJobSubmitted()

	if err := uc.start(ctx, job); err != nil {
		// stays in init; the reconciler resumes it
		logging.With(logging.WithTrackingID(ctx, id), uc.log).Warn().Err(err).Msg("could not schedule job run")
	}
	return id, nil
}

func (uc *pipelineUC) Cancel(ctx context.Context, id string) (*model.BlogJob, error) {
	unlock, err := uc.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		job, err := uc.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() {
			return nil, fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
		}
		prev := job.Status
		st, ok := model.NextStage(prev)
		if !ok {
			st = job.LastStage
		}
		_ = job.Fail(st, model.FailureReasonCancelled, "Job cancelled", uc.opts.Now())

		err = uc.withStoreRetry(ctx, func() error { return uc.jobs.Save(ctx, job, prev) })
		if errors.Is(err, domain.ErrPreconditionFailed) && attempt < 3 {
			// the run moved on between load and save
			continue
		}
		if err != nil {
			return nil, err
		}
		uc.stopRun(id)
		metrics.IncJobFinished(string(model.JobStatusFailed), model.FailureReasonCancelled)
		logging.With(logging.WithTrackingID(ctx, id), uc.log).Info().Str("at_status", string(prev)).Msg("job cancelled")
		return job, nil
	}
}

func (uc *pipelineUC) RetryStage(ctx context.Context, id string, st model.Stage) (*model.BlogJob, error) {
	defer logging.TraceDuration(uc.log, "PipelineUC.RetryStage")()

	unlock, err := uc.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	job, err := uc.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRetry(job, st); err != nil {
		return nil, err
	}
	r, ok := uc.claim(job)
	if !ok {
		return nil, fmt.Errorf("%w: job %s is running", domain.ErrInvalidTransition, id)
	}
	defer uc.release(r)

	ctx = logging.WithStage(logging.WithTrackingID(ctx, id), string(st))
	return r.retry(ctx, st)
}

func (uc *pipelineUC) Resume(ctx context.Context, id string) error {
	unlock, err := uc.locker.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	job, err := uc.load(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, job.Status)
	}
	return uc.start(ctx, job)
}

func (uc *pipelineUC) IsRunning(id string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	_, ok := uc.running[id]
	return ok
}

func (uc *pipelineUC) Drain(ctx context.Context) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		uc.mu.Lock()
		n := len(uc.running)
		uc.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// start claims the job for this process and queues its run.
func (uc *pipelineUC) start(ctx context.Context, job *model.BlogJob) error {
	r, ok := uc.claim(job)
	if !ok {
		return fmt.Errorf("%w: job %s is running", domain.ErrInvalidTransition, job.TrackingID)
	}
	err := uc.pool.Submit(ctx, func(ctx context.Context) error {
		defer uc.release(r)
		return r.execute(ctx)
	})
	if err != nil {
		uc.release(r)
		return err
	}
	return nil
}

func (uc *pipelineUC) claim(job *model.BlogJob) (*jobRun, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, busy := uc.running[job.TrackingID]; busy {
		return nil, false
	}
	r := &jobRun{uc: uc, id: job.TrackingID, job: job.Clone()}
	uc.running[job.TrackingID] = r
	return r, true
}

func (uc *pipelineUC) release(r *jobRun) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.running[r.id] == r {
		delete(uc.running, r.id)
	}
}

func (uc *pipelineUC) stopRun(id string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if r, ok := uc.running[id]; ok {
		r.stop()
	}
}

func (uc *pipelineUC) load(ctx context.Context, id string) (*model.BlogJob, error) {
	var job *model.BlogJob
	err := uc.withStoreRetry(ctx, func() error {
		var err error
		job, err = uc.jobs.FindByID(ctx, id)
		return err
	})
	return job, err
}

// withStoreRetry retries op while the store is unavailable, doubling the
// delay up to maxStoreBackoff. Other errors return immediately.
func (uc *pipelineUC) withStoreRetry(ctx context.Context, op func() error) error {
	delay := uc.opts.StoreRetryBase
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				metrics.IncStoreRetry("recovered")
			}
			return nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		if attempt >= uc.opts.StoreRetryAttempts {
			metrics.IncStoreRetry("exhausted")
			return err
		}
		metrics.IncStoreRetry("retry")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxStoreBackoff {
			delay = maxStoreBackoff
		}
	}
}

// checkRetry enforces which stages may be retried in the job's current state.
func checkRetry(job *model.BlogJob, st model.Stage) error {
	switch job.Status {
	case model.JobStatusCompleted:
		return fmt.Errorf("%w: completed jobs cannot be retried", domain.ErrInvalidTransition)
	case model.JobStatusFailed:
	default:
		if st != model.StageImageFinder && st != job.LastStage {
			return fmt.Errorf("%w: only the last stage (%s) can be retried on a %s job", domain.ErrInvalidTransition, job.LastStage, job.Status)
		}
	}
	switch st {
	case model.StageTopicRefiner:
		if job.Topic == "" {
			return fmt.Errorf("%w: %s needs a topic", domain.ErrInvalidTransition, st)
		}
	case model.StageDrafter, model.StageImageFinder:
		if job.Title == "" {
			return fmt.Errorf("%w: %s needs a title", domain.ErrInvalidTransition, st)
		}
	case model.StageRater, model.StageRewriter:
		if !reached(job, model.JobStatusDrafted) {
			return fmt.Errorf("%w: %s needs a draft", domain.ErrInvalidTransition, st)
		}
	}
	return nil
}

// effectiveStatus is the pipeline position of a job, looking through failed.
func effectiveStatus(job *model.BlogJob) model.JobStatus {
	if job.Status != model.JobStatusFailed {
		return job.Status
	}
	if job.Error != nil && job.Error.AtStatus != "" {
		return job.Error.AtStatus
	}
	return model.JobStatusInit
}

func reached(job *model.BlogJob, s model.JobStatus) bool {
	eff := effectiveStatus(job)
	return model.LaterStatus(eff, s) == eff
}

// publicMessage is what pollers see; provider details stay in the logs.
func publicMessage(st model.Stage, err error) string {
	var reason string
	switch {
	case errors.Is(err, domain.ErrNoImagesFound):
		reason = "no images found for the title"
	case errors.Is(err, domain.ErrGenerationEmpty):
		reason = "the text provider returned no usable output"
	case errors.Is(err, domain.ErrProviderError) && st == model.StageImageFinder:
		reason = "the image provider is unavailable"
	case errors.Is(err, domain.ErrProviderError):
		reason = "the text provider is unavailable"
	case errors.Is(err, domain.ErrInvalidTransition):
		reason = "the post is incomplete"
	case errors.Is(err, domain.ErrInvalidArgument):
		reason = "invalid stage input"
	default:
		reason = "stage failed"
	}
	return fmt.Sprintf("%s: %s", st, reason)
}
