package repository

import (
	"context"
	"time"

	"blog-job-pipeline/internal/domain/model"
)

type JobFilter struct {
	Statuses      []model.JobStatus
	UpdatedBefore time.Time // zero means no bound
	Limit         int
}

// JobRepository persists blog jobs, newest first on List.
type JobRepository interface {
	Create(ctx context.Context, job *model.BlogJob) error
	FindByID(ctx context.Context, id string) (*model.BlogJob, error)
	// Save writes status and every stage field in one update. When expected is
	// non-empty the write only happens if the stored status is one of them
	// (domain.ErrPreconditionFailed otherwise).
	Save(ctx context.Context, job *model.BlogJob, expected ...model.JobStatus) error
	Delete(ctx context.Context, id string) error
	// DeleteIf removes the job only if the stored record still matches f
	// (Statuses and UpdatedBefore; Limit is ignored).
	DeleteIf(ctx context.Context, id string, f JobFilter) error
	List(ctx context.Context, f JobFilter) ([]*model.BlogJob, error)
}
