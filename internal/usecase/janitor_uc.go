package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/infra/metrics"
)

// Compile-time check
var _ JanitorUseCase = (*janitorUC)(nil)

// JanitorUseCase reclaims storage held by old terminal jobs.
type JanitorUseCase interface {
	Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error)
	// Stats previews the next default sweep without deleting anything.
	Stats(ctx context.Context, retentionHours float64) (*JobStats, error)
	SweepByStatus(ctx context.Context, status model.JobStatus, retentionHours float64) (*SweepResult, error)
}

type SweepOptions struct {
	RetentionHours float64 // 0 means the configured default
	Statuses       []model.JobStatus
	DryRun         bool
}

type SweepResult struct {
	RemovedCount   int
	RemainingCount int
	TotalCount     int
	DryRun         bool
}

type JobStats struct {
	Total          int
	ByStatus       map[model.JobStatus]int
	OldCount       int
	RetentionHours float64
}

type JanitorOptions struct {
	DefaultRetentionHours float64
	Now                   func() time.Time
}

var defaultSweepStatuses = []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}

type janitorUC struct {
	jobs     repository.JobRepository
	locker   adapter.JobLocker
	reporter adapter.SweepReporter
	opts     JanitorOptions
	log      *zerolog.Logger
}

func NewJanitorUseCase(jobs repository.JobRepository, locker adapter.JobLocker, reporter adapter.SweepReporter, opts JanitorOptions, logger *zerolog.Logger) *janitorUC {
	if opts.DefaultRetentionHours <= 0 {
		opts.DefaultRetentionHours = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if locker == nil {
		locker = NewKeyedLocker()
	}
	l := logger.With().Str("component", "janitor").Logger()
	return &janitorUC{jobs: jobs, locker: locker, reporter: reporter, opts: opts, log: &l}
}

func (uc *janitorUC) retention(hours float64) (time.Duration, float64, error) {
	if hours < 0 {
		return 0, 0, fmt.Errorf("%w: retentionHours must be positive", domain.ErrInvalidArgument)
	}
	if hours == 0 {
		hours = uc.opts.DefaultRetentionHours
	}
	return time.Duration(hours * float64(time.Hour)), hours, nil
}

func sweepStatuses(in []model.JobStatus) (map[model.JobStatus]bool, error) {
	if len(in) == 0 {
		in = defaultSweepStatuses
	}
	set := make(map[model.JobStatus]bool, len(in))
	for _, s := range in {
		if !s.IsTerminal() {
			return nil, fmt.Errorf("%w: only terminal statuses can be swept, got %q", domain.ErrInvalidArgument, s)
		}
		set[s] = true
	}
	return set, nil
}

func eligible(job *model.BlogJob, statuses map[model.JobStatus]bool, retention time.Duration, now time.Time) bool {
	return job.IsTerminal() && statuses[job.Status] && job.Age(now) > retention
}

func (uc *janitorUC) Sweep(ctx context.Context, opts SweepOptions) (res *SweepResult, err error) {
	defer logging.TraceDuration(uc.log, "JanitorUC.Sweep")()
	defer func() {
		removed := 0
		if res != nil {
			removed = res.RemovedCount
		}
		metrics.IncJanitorRun(opts.DryRun, removed, err)
	}()

	retention, hours, err := uc.retention(opts.RetentionHours)
	if err != nil {
		return nil, err
	}
	statuses, err := sweepStatuses(opts.Statuses)
	if err != nil {
		return nil, err
	}
	all, err := uc.jobs.List(ctx, repository.JobFilter{})
	if err != nil {
		return nil, err
	}
	now := uc.opts.Now()

	res = &SweepResult{TotalCount: len(all), DryRun: opts.DryRun}
	vanished := 0
	for _, job := range all {
		if !eligible(job, statuses, retention, now) {
			continue
		}
		if opts.DryRun {
			res.RemovedCount++
			continue
		}
		removed, err := uc.deleteIfEligible(ctx, job.TrackingID, statuses, retention, now)
		if errors.Is(err, domain.ErrNotFound) {
			vanished++
			continue
		}
		if err != nil {
			return nil, err
		}
		if removed {
			res.RemovedCount++
		}
	}
	res.RemainingCount = res.TotalCount - res.RemovedCount - vanished

	uc.log.Info().
		Bool("dry_run", res.DryRun).
		Float64("retention_hours", hours).
		Int("removed", res.RemovedCount).
		Int("remaining", res.RemainingCount).
		Int("total", res.TotalCount).
		Msg("sweep finished")

	if !res.DryRun && res.RemovedCount > 0 && uc.reporter != nil {
		names := make([]string, 0, len(statuses))
		for _, s := range model.AllStatuses {
			if statuses[s] {
				names = append(names, string(s))
			}
		}
		rep := adapter.SweepReport{RetentionHours: hours, Statuses: names, Removed: res.RemovedCount, Remaining: res.RemainingCount, Total: res.TotalCount}
		if err := uc.reporter.ReportSweep(ctx, rep); err != nil {
			uc.log.Warn().Err(err).Msg("sweep report failed")
		}
	}
	return res, nil
}

// deleteIfEligible deletes under the job's lock, and the store re-checks
// status and age so a job reopened since List is never removed.
func (uc *janitorUC) deleteIfEligible(ctx context.Context, id string, statuses map[model.JobStatus]bool, retention time.Duration, now time.Time) (bool, error) {
	unlock, err := uc.locker.Lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	f := repository.JobFilter{UpdatedBefore: now.Add(-retention)}
	for _, s := range model.AllStatuses {
		if statuses[s] {
			f.Statuses = append(f.Statuses, s)
		}
	}
	err = uc.jobs.DeleteIf(ctx, id, f)
	if errors.Is(err, domain.ErrPreconditionFailed) {
		uc.log.Debug().Str("tracking_id", id).Msg("job changed since listing; kept")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (uc *janitorUC) Stats(ctx context.Context, retentionHours float64) (*JobStats, error) {
	retention, hours, err := uc.retention(retentionHours)
	if err != nil {
		return nil, err
	}
	statuses, _ := sweepStatuses(nil)
	all, err := uc.jobs.List(ctx, repository.JobFilter{})
	if err != nil {
		return nil, err
	}
	now := uc.opts.Now()

	st := &JobStats{Total: len(all), ByStatus: make(map[model.JobStatus]int, len(model.AllStatuses)), RetentionHours: hours}
	for _, s := range model.AllStatuses {
		st.ByStatus[s] = 0
	}
	for _, job := range all {
		st.ByStatus[job.Status]++
		if eligible(job, statuses, retention, now) {
			st.OldCount++
		}
	}

	gauge := make(map[string]int, len(st.ByStatus))
	for s, n := range st.ByStatus {
		gauge[string(s)] = n
	}
	metrics.SetJobsByStatus(gauge)
	return st, nil
}

func (uc *janitorUC) SweepByStatus(ctx context.Context, status model.JobStatus, retentionHours float64) (*SweepResult, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("%w: only terminal statuses can be swept, got %q", domain.ErrInvalidArgument, status)
	}
	return uc.Sweep(ctx, SweepOptions{RetentionHours: retentionHours, Statuses: []model.JobStatus{status}})
}
