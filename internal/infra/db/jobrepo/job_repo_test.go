//go:build !integration

package jobrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/db/memory"
)

func newJob(t *testing.T, id string, created time.Time) *model.BlogJob {
	t.Helper()
	j, err := model.NewBlogJob(id, "AI in education", model.Settings{Tone: model.ToneCasual}, created)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return j
}

func TestJobRepository(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should round-trip every field", func(t *testing.T) {
		repo := NewJobRepository(memory.NewDocumentStore())
		j := newJob(t, "job-1", base)
		if err := repo.Create(ctx, j); err != nil {
			t.Fatalf("create: %v", err)
		}
		j.Status = model.JobStatusFailed
		j.Title = "Title"
		j.Content = "<p>x</p>"
		j.WordCount = 1
		j.Images = []string{"https://img/1.jpg"}
		j.Rating = &model.Rating{Score: 7, Review: "good"}
		j.LastStage = model.StageImageFinder
		j.Degraded = []model.Stage{model.StageRater}
		j.Error = &model.JobError{Stage: model.StageImageFinder, Reason: model.FailureReasonStage, Message: "no images", AtStatus: model.JobStatusRated}
		j.UpdatedAt = base.Add(time.Minute)
		if err := repo.Save(ctx, j); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := repo.FindByID(ctx, "job-1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Status != model.JobStatusFailed || got.Title != "Title" || got.Rating.Score != 7 {
			t.Errorf("unexpected job %+v", got)
		}
		if got.Error == nil || got.Error.Stage != model.StageImageFinder || got.Error.AtStatus != model.JobStatusRated {
			t.Errorf("unexpected error record %+v", got.Error)
		}
		if got.Settings.Tone != model.ToneCasual || len(got.Degraded) != 1 {
			t.Errorf("unexpected settings/degraded %+v %v", got.Settings, got.Degraded)
		}
		if !got.CreatedAt.Equal(base) || !got.UpdatedAt.Equal(base.Add(time.Minute)) {
			t.Errorf("timestamps not preserved: %v %v", got.CreatedAt, got.UpdatedAt)
		}
	})

	t.Run("should refuse a save when the status moved underneath", func(t *testing.T) {
		repo := NewJobRepository(memory.NewDocumentStore())
		j := newJob(t, "job-2", base)
		_ = repo.Create(ctx, j)

		cancelled := j.Clone()
		_ = cancelled.Fail(model.StageTopicRefiner, model.FailureReasonCancelled, "cancelled", base)
		if err := repo.Save(ctx, cancelled, model.JobStatusInit); err != nil {
			t.Fatalf("cancel save: %v", err)
		}

		j.Status = model.JobStatusTopicReady
		err := repo.Save(ctx, j, model.JobStatusInit)
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			t.Fatalf("expected ErrPreconditionFailed, got %v", err)
		}
		got, _ := repo.FindByID(ctx, "job-2")
		if got.Status != model.JobStatusFailed {
			t.Errorf("cancelled status must survive, got %s", got.Status)
		}
	})

	t.Run("should list newest first with filters", func(t *testing.T) {
		repo := NewJobRepository(memory.NewDocumentStore())
		for i, st := range []model.JobStatus{model.JobStatusCompleted, model.JobStatusDrafting, model.JobStatusFailed} {
			j := newJob(t, "job-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
			_ = repo.Create(ctx, j)
			j.Status = st
			_ = repo.Save(ctx, j)
		}
		all, err := repo.List(ctx, repository.JobFilter{})
		if err != nil || len(all) != 3 {
			t.Fatalf("list: %v %d", err, len(all))
		}
		if all[0].TrackingID != "job-c" || all[2].TrackingID != "job-a" {
			t.Errorf("expected newest first, got %s..%s", all[0].TrackingID, all[2].TrackingID)
		}

		terminal, _ := repo.List(ctx, repository.JobFilter{
			Statuses:      []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed},
			UpdatedBefore: base.Add(90 * time.Minute),
		})
		if len(terminal) != 1 || terminal[0].TrackingID != "job-a" {
			t.Errorf("unexpected filtered list %v", terminal)
		}
	})

	t.Run("should surface duplicates and missing ids", func(t *testing.T) {
		repo := NewJobRepository(memory.NewDocumentStore())
		j := newJob(t, "dup", base)
		_ = repo.Create(ctx, j)
		if err := repo.Create(ctx, j); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
		if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
