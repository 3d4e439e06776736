//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/db/jobrepo"
	"blog-job-pipeline/internal/infra/db/memory"
	"blog-job-pipeline/internal/usecase"
)

type MockReporter struct {
	ReportSweepFunc func(ctx context.Context, r adapter.SweepReport) error
	reports         []adapter.SweepReport
}

func (m *MockReporter) ReportSweep(ctx context.Context, r adapter.SweepReport) error {
	m.reports = append(m.reports, r)
	if m.ReportSweepFunc != nil {
		return m.ReportSweepFunc(ctx, r)
	}
	return nil
}

var janitorNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedJob(t *testing.T, repo repository.JobRepository, id string, status model.JobStatus, age time.Duration) {
	t.Helper()
	job, err := model.NewBlogJob(id, "topic "+id, model.Settings{}, janitorNow.Add(-age))
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	job.Status = status
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func newJanitor(t *testing.T) (usecase.JanitorUseCase, repository.JobRepository, *MockReporter) {
	t.Helper()
	repo := jobrepo.NewJobRepository(memory.NewDocumentStore())
	seedJob(t, repo, "completed-2h", model.JobStatusCompleted, 2*time.Hour)
	seedJob(t, repo, "completed-30m", model.JobStatusCompleted, 30*time.Minute)
	seedJob(t, repo, "failed-3h", model.JobStatusFailed, 3*time.Hour)
	seedJob(t, repo, "drafting-5h", model.JobStatusDrafting, 5*time.Hour)
	seedJob(t, repo, "init-2h", model.JobStatusInit, 2*time.Hour)

	rep := &MockReporter{}
	uc := usecase.NewJanitorUseCase(repo, nil, rep, usecase.JanitorOptions{
		DefaultRetentionHours: 1,
		Now:                   func() time.Time { return janitorNow },
	}, newTestLogger())
	return uc, repo, rep
}

func exists(repo repository.JobRepository, id string) bool {
	_, err := repo.FindByID(context.Background(), id)
	return err == nil
}

func TestJanitorUseCase_Sweep(t *testing.T) {
	ctx := context.Background()

	t.Run("should remove only old terminal jobs", func(t *testing.T) {
		uc, repo, rep := newJanitor(t)

		res, err := uc.Sweep(ctx, usecase.SweepOptions{RetentionHours: 1})
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if res.RemovedCount != 2 || res.RemainingCount != 3 || res.TotalCount != 5 {
			t.Errorf("unexpected result %+v", res)
		}
		if exists(repo, "completed-2h") || exists(repo, "failed-3h") {
			t.Error("old terminal jobs should be gone")
		}
		for _, id := range []string{"completed-30m", "drafting-5h", "init-2h"} {
			if !exists(repo, id) {
				t.Errorf("%s should be kept", id)
			}
		}
		if len(rep.reports) != 1 || rep.reports[0].Removed != 2 {
			t.Errorf("expected one report with 2 removals, got %+v", rep.reports)
		}
	})

	t.Run("should match stats and the next real sweep on dry run", func(t *testing.T) {
		uc, repo, rep := newJanitor(t)

		dry, err := uc.Sweep(ctx, usecase.SweepOptions{DryRun: true})
		if err != nil {
			t.Fatalf("dry run: %v", err)
		}
		if !dry.DryRun || !exists(repo, "completed-2h") || !exists(repo, "failed-3h") {
			t.Fatalf("dry run must not delete, got %+v", dry)
		}
		if len(rep.reports) != 0 {
			t.Error("dry runs are not reported")
		}
		stats, err := uc.Stats(ctx, 0)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		swept, err := uc.Sweep(ctx, usecase.SweepOptions{})
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if dry.RemovedCount != stats.OldCount || stats.OldCount != swept.RemovedCount {
			t.Errorf("counts differ: dry=%d stats=%d real=%d", dry.RemovedCount, stats.OldCount, swept.RemovedCount)
		}
	})

	t.Run("should reject non-terminal statuses", func(t *testing.T) {
		uc, repo, _ := newJanitor(t)
		_, err := uc.Sweep(ctx, usecase.SweepOptions{Statuses: []model.JobStatus{model.JobStatusDrafting}})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if !exists(repo, "drafting-5h") {
			t.Error("drafting job must never be removed")
		}
	})

	t.Run("should reject negative retention", func(t *testing.T) {
		uc, _, _ := newJanitor(t)
		if _, err := uc.Sweep(ctx, usecase.SweepOptions{RetentionHours: -1}); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should keep sweeping when the report fails", func(t *testing.T) {
		uc, _, rep := newJanitor(t)
		rep.ReportSweepFunc = func(ctx context.Context, r adapter.SweepReport) error { return errors.New("telegram down") }
		if _, err := uc.Sweep(ctx, usecase.SweepOptions{}); err != nil {
			t.Errorf("report errors must not fail the sweep, got %v", err)
		}
	})
}

// staleViewRepo serves reads from a snapshot, like a read cache that missed
// an invalidation, while writes and deletes reach the live store.
type staleViewRepo struct {
	repository.JobRepository
	snapshot map[string]*model.BlogJob
}

func (r *staleViewRepo) FindByID(ctx context.Context, id string) (*model.BlogJob, error) {
	if j, ok := r.snapshot[id]; ok {
		return j.Clone(), nil
	}
	return r.JobRepository.FindByID(ctx, id)
}

func (r *staleViewRepo) List(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error) {
	out := make([]*model.BlogJob, 0, len(r.snapshot))
	for _, j := range r.snapshot {
		out = append(out, j.Clone())
	}
	return out, nil
}

func TestJanitorUseCase_ReopenedJob(t *testing.T) {
	ctx := context.Background()

	t.Run("should keep a job reopened after it was read as old and failed", func(t *testing.T) {
		live := jobrepo.NewJobRepository(memory.NewDocumentStore())
		seedJob(t, live, "failed-3h", model.JobStatusFailed, 3*time.Hour)

		old, err := live.FindByID(ctx, "failed-3h")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		view := &staleViewRepo{JobRepository: live, snapshot: map[string]*model.BlogJob{"failed-3h": old}}

		reopened := old.Clone()
		if err := reopened.Reopen(model.JobStatusDrafted, "retried", janitorNow); err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if err := live.Save(ctx, reopened, model.JobStatusFailed); err != nil {
			t.Fatalf("save: %v", err)
		}

		rep := &MockReporter{}
		uc := usecase.NewJanitorUseCase(view, nil, rep, usecase.JanitorOptions{
			DefaultRetentionHours: 1,
			Now:                   func() time.Time { return janitorNow },
		}, newTestLogger())

		res, err := uc.Sweep(ctx, usecase.SweepOptions{})
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if res.RemovedCount != 0 {
			t.Errorf("expected nothing removed, got %+v", res)
		}
		got, err := live.FindByID(ctx, "failed-3h")
		if err != nil {
			t.Fatalf("reopened job was deleted: %v", err)
		}
		if got.Status != model.JobStatusDrafted {
			t.Errorf("expected drafted, got %s", got.Status)
		}
		if len(rep.reports) != 0 {
			t.Errorf("no report expected when nothing was removed, got %d", len(rep.reports))
		}
	})
}

func TestJanitorUseCase_SweepByStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("should restrict the sweep to one terminal status", func(t *testing.T) {
		uc, repo, _ := newJanitor(t)
		res, err := uc.SweepByStatus(ctx, model.JobStatusFailed, 1)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if res.RemovedCount != 1 || exists(repo, "failed-3h") || !exists(repo, "completed-2h") {
			t.Errorf("unexpected sweep %+v", res)
		}
	})

	t.Run("should refuse non-terminal statuses", func(t *testing.T) {
		uc, _, _ := newJanitor(t)
		if _, err := uc.SweepByStatus(ctx, model.JobStatusRating, 1); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestJanitorUseCase_Stats(t *testing.T) {
	uc, _, _ := newJanitor(t)
	stats, err := uc.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 5 || stats.OldCount != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.ByStatus[model.JobStatusCompleted] != 2 || stats.ByStatus[model.JobStatusDrafting] != 1 || stats.ByStatus[model.JobStatusRated] != 0 {
		t.Errorf("unexpected per-status counts %v", stats.ByStatus)
	}
}
