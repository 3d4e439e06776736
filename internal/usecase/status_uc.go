package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
)

// Compile-time check
var _ StatusUseCase = (*statusUC)(nil)

// StatusUseCase is the read-only view used by pollers.
type StatusUseCase interface {
	GetStatus(ctx context.Context, trackingID string) (*model.BlogJob, error)
	ListAll(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error)
}

const maxListLimit = 500

type statusUC struct {
	jobs repository.JobRepository
	log  *zerolog.Logger
}

func NewStatusUseCase(jobs repository.JobRepository, logger *zerolog.Logger) *statusUC {
	return &statusUC{jobs: jobs, log: logger}
}

func (uc *statusUC) GetStatus(ctx context.Context, id string) (*model.BlogJob, error) {
	if !model.ValidTrackingID(id) {
		return nil, domain.ErrNotFound
	}
	return uc.jobs.FindByID(ctx, id)
}

func (uc *statusUC) ListAll(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error) {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, s)
		}
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidArgument)
	}
	if f.Limit == 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return uc.jobs.List(ctx, f)
}
