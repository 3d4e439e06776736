//go:build !integration

package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/infra/db/jobrepo"
	"blog-job-pipeline/internal/infra/db/memory"
	"blog-job-pipeline/internal/usecase"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type mockPipeline struct {
	usecase.PipelineUseCase
	IsRunningFunc func(id string) bool
	ResumeFunc    func(ctx context.Context, id string) error
	resumed       []string
}

func (m *mockPipeline) IsRunning(id string) bool {
	if m.IsRunningFunc != nil {
		return m.IsRunningFunc(id)
	}
	return false
}

func (m *mockPipeline) Resume(ctx context.Context, id string) error {
	m.resumed = append(m.resumed, id)
	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx, id)
	}
	return nil
}

type mockJanitor struct {
	SweepFunc func(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error)
	sweeps    []usecase.SweepOptions
	stats     int
}

func (m *mockJanitor) Sweep(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error) {
	m.sweeps = append(m.sweeps, opts)
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx, opts)
	}
	return &usecase.SweepResult{}, nil
}

func (m *mockJanitor) Stats(ctx context.Context, retentionHours float64) (*usecase.JobStats, error) {
	m.stats++
	return &usecase.JobStats{}, nil
}

func (m *mockJanitor) SweepByStatus(ctx context.Context, status model.JobStatus, retentionHours float64) (*usecase.SweepResult, error) {
	return nil, errors.New("not used")
}

func TestJobReconciler_Tick(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo := jobrepo.NewJobRepository(memory.NewDocumentStore())
	seed := func(id string, status model.JobStatus, age time.Duration) {
		job, err := model.NewBlogJob(id, "topic", model.Settings{}, now.Add(-age))
		if err != nil {
			t.Fatalf("new job: %v", err)
		}
		job.Status = status
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	seed("stale-drafting", model.JobStatusDrafting, time.Hour)
	seed("stale-rated", model.JobStatusRated, time.Hour)
	seed("fresh-drafting", model.JobStatusDrafting, time.Minute)
	seed("stale-completed", model.JobStatusCompleted, time.Hour)
	seed("stale-running", model.JobStatusRating, time.Hour)

	t.Run("should resume only stalled idle jobs", func(t *testing.T) {
		uc := &mockPipeline{IsRunningFunc: func(id string) bool { return id == "stale-running" }}
		w := NewJobReconciler(uc, repo, time.Minute, 10*time.Minute, newTestLogger())
		w.now = func() time.Time { return now }

		if n := w.tick(ctx); n != 2 {
			t.Errorf("expected 2 resumed jobs, got %d (%v)", n, uc.resumed)
		}
		got := map[string]bool{}
		for _, id := range uc.resumed {
			got[id] = true
		}
		if !got["stale-drafting"] || !got["stale-rated"] || len(got) != 2 {
			t.Errorf("unexpected resumed set %v", uc.resumed)
		}
	})

	t.Run("should not count jobs that finished since the scan", func(t *testing.T) {
		uc := &mockPipeline{ResumeFunc: func(ctx context.Context, id string) error {
			return domain.ErrInvalidTransition
		}}
		w := NewJobReconciler(uc, repo, time.Minute, 10*time.Minute, newTestLogger())
		w.now = func() time.Time { return now }
		if n := w.tick(ctx); n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	})
}

func TestJanitorWorker_Tick(t *testing.T) {
	t.Run("should sweep with the configured retention and refresh stats", func(t *testing.T) {
		uc := &mockJanitor{}
		w := NewJanitorWorker(time.Minute, 2, uc, newTestLogger())
		w.tick(context.Background())
		if len(uc.sweeps) != 1 || uc.sweeps[0].RetentionHours != 2 || uc.sweeps[0].DryRun {
			t.Errorf("unexpected sweeps %+v", uc.sweeps)
		}
		if uc.stats != 1 {
			t.Errorf("expected stats refresh, got %d", uc.stats)
		}
	})

	t.Run("should skip stats when the sweep fails", func(t *testing.T) {
		uc := &mockJanitor{SweepFunc: func(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error) {
			return nil, domain.ErrStoreUnavailable
		}}
		w := NewJanitorWorker(time.Minute, 1, uc, newTestLogger())
		w.tick(context.Background())
		if uc.stats != 0 {
			t.Error("stats must not run after a failed sweep")
		}
	})

	t.Run("should stop when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w := NewJanitorWorker(time.Hour, 1, &mockJanitor{}, newTestLogger())
		if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
