//go:build !integration

package api_test

import (
	"context"
	"time"

	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/usecase"
)

type MockPipeline struct {
	SubmitFunc     func(ctx context.Context, req usecase.SubmitRequest) (string, error)
	CancelFunc     func(ctx context.Context, id string) (*model.BlogJob, error)
	RetryStageFunc func(ctx context.Context, id string, st model.Stage) (*model.BlogJob, error)
	ResumeFunc     func(ctx context.Context, id string) error
}

func (m *MockPipeline) Submit(ctx context.Context, req usecase.SubmitRequest) (string, error) {
	return m.SubmitFunc(ctx, req)
}

func (m *MockPipeline) Cancel(ctx context.Context, id string) (*model.BlogJob, error) {
	return m.CancelFunc(ctx, id)
}

func (m *MockPipeline) RetryStage(ctx context.Context, id string, st model.Stage) (*model.BlogJob, error) {
	return m.RetryStageFunc(ctx, id, st)
}

func (m *MockPipeline) Resume(ctx context.Context, id string) error { return m.ResumeFunc(ctx, id) }

func (m *MockPipeline) IsRunning(string) bool { return false }

func (m *MockPipeline) Drain(context.Context) error { return nil }

type MockStatus struct {
	GetStatusFunc func(ctx context.Context, id string) (*model.BlogJob, error)
	ListAllFunc   func(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error)
}

func (m *MockStatus) GetStatus(ctx context.Context, id string) (*model.BlogJob, error) {
	return m.GetStatusFunc(ctx, id)
}

func (m *MockStatus) ListAll(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error) {
	return m.ListAllFunc(ctx, f)
}

type MockJanitor struct {
	SweepFunc func(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error)
	StatsFunc func(ctx context.Context, hours float64) (*usecase.JobStats, error)
}

func (m *MockJanitor) Sweep(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error) {
	return m.SweepFunc(ctx, opts)
}

func (m *MockJanitor) Stats(ctx context.Context, hours float64) (*usecase.JobStats, error) {
	return m.StatsFunc(ctx, hours)
}

func (m *MockJanitor) SweepByStatus(ctx context.Context, st model.JobStatus, hours float64) (*usecase.SweepResult, error) {
	return m.SweepFunc(ctx, usecase.SweepOptions{RetentionHours: hours, Statuses: []model.JobStatus{st}})
}

type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	keys      []string
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.keys = append(m.keys, key)
	return m.AllowFunc(ctx, key, limit, window)
}
