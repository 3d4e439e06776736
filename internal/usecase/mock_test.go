//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/db/jobrepo"
	"blog-job-pipeline/internal/infra/db/memory"
	"blog-job-pipeline/internal/infra/worker"
	"blog-job-pipeline/internal/usecase"
	"blog-job-pipeline/internal/usecase/stage"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// -----------------------------
// Providers
// -----------------------------

// MockGenerator answers by prompt kind so the real stage executors can run.
type MockGenerator struct {
	mu    sync.Mutex
	calls map[string]int

	TitleFunc   func(ctx context.Context) (string, error)
	DraftFunc   func(ctx context.Context) (string, error)
	RateFunc    func(ctx context.Context) (string, error)
	RewriteFunc func(ctx context.Context) (string, error)
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		calls: map[string]int{},
		TitleFunc: func(ctx context.Context) (string, error) {
			return "How AI Is Changing the Classroom", nil
		},
		DraftFunc: func(ctx context.Context) (string, error) {
			return "<h2>Intro</h2><p>AI tutors adapt to every student.</p>", nil
		},
		RateFunc: func(ctx context.Context) (string, error) {
			return `{"score": 7, "review": "Add concrete examples."}`, nil
		},
		RewriteFunc: func(ctx context.Context) (string, error) {
			return "<h2>Intro</h2><p>AI tutors adapt to every student, for example in maths.</p>", nil
		},
	}
}

func promptKind(req adapter.GenerateRequest) string {
	sys := req.Messages[0].Content
	switch {
	case req.JSONOutput:
		return "rate"
	case strings.Contains(sys, "rough ideas"):
		return "title"
	case strings.Contains(sys, "reviewer feedback"):
		return "rewrite"
	default:
		return "draft"
	}
}

func (m *MockGenerator) Generate(ctx context.Context, req adapter.GenerateRequest) (string, adapter.Usage, error) {
	kind := promptKind(req)
	m.mu.Lock()
	m.calls[kind]++
	m.mu.Unlock()

	var fn func(ctx context.Context) (string, error)
	switch kind {
	case "title":
		fn = m.TitleFunc
	case "rate":
		fn = m.RateFunc
	case "rewrite":
		fn = m.RewriteFunc
	default:
		fn = m.DraftFunc
	}
	text, err := fn(ctx)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return text, adapter.Usage{}, nil
}

func (m *MockGenerator) CountTokens(ctx context.Context, model string, msgs []adapter.Message) (int, error) {
	return 0, nil
}

func (m *MockGenerator) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

type MockSearcher struct {
	SearchFunc func(ctx context.Context, query string, max int) ([]string, error)
}

func NewMockSearcher() *MockSearcher {
	return &MockSearcher{SearchFunc: func(ctx context.Context, query string, max int) ([]string, error) {
		if query == "xyzzy-nonexistent-topic-42" {
			return nil, nil
		}
		return []string{"https://img.example/1.jpg", "https://img.example/2.jpg"}, nil
	}}
}

func (m *MockSearcher) Search(ctx context.Context, query string, max int) ([]string, error) {
	return m.SearchFunc(ctx, query, max)
}

func newStages(gen adapter.TextGenerator, search adapter.ImageSearcher) usecase.Stages {
	cfg := stage.Config{Timeout: time.Second}
	return usecase.Stages{
		TopicRefiner: stage.NewTopicRefiner(gen, cfg, nil),
		Drafter:      stage.NewDrafter(gen, cfg, nil),
		Rater:        stage.NewRater(gen, cfg, nil),
		Rewriter:     stage.NewRewriter(gen, cfg, nil),
		ImageFinder:  stage.NewImageFinder(search, 5, time.Second),
	}
}

// -----------------------------
// Repositories
// -----------------------------

// RecordingRepo keeps every successfully saved job version.
type RecordingRepo struct {
	repository.JobRepository
	mu      sync.Mutex
	history []*model.BlogJob

	// SaveErrFunc, when set, can fail a save before it reaches the store.
	SaveErrFunc func(job *model.BlogJob) error
}

func NewRecordingRepo() *RecordingRepo {
	return &RecordingRepo{JobRepository: jobrepo.NewJobRepository(memory.NewDocumentStore())}
}

func (r *RecordingRepo) Save(ctx context.Context, job *model.BlogJob, expected ...model.JobStatus) error {
	r.mu.Lock()
	fn := r.SaveErrFunc
	r.mu.Unlock()
	if fn != nil {
		if err := fn(job); err != nil {
			return err
		}
	}
	if err := r.JobRepository.Save(ctx, job, expected...); err != nil {
		return err
	}
	r.mu.Lock()
	r.history = append(r.history, job.Clone())
	r.mu.Unlock()
	return nil
}

func (r *RecordingRepo) SetSaveErr(fn func(job *model.BlogJob) error) {
	r.mu.Lock()
	r.SaveErrFunc = fn
	r.mu.Unlock()
}

func (r *RecordingRepo) History(id string) []*model.BlogJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.BlogJob
	for _, j := range r.history {
		if j.TrackingID == id {
			out = append(out, j)
		}
	}
	return out
}

// -----------------------------
// Harness
// -----------------------------

type harness struct {
	repo   *RecordingRepo
	gen    *MockGenerator
	search *MockSearcher
	uc     usecase.PipelineUseCase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(4, 16, newTestLogger())
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	h := &harness{repo: NewRecordingRepo(), gen: NewMockGenerator(), search: NewMockSearcher()}
	h.uc = usecase.NewPipelineUseCase(h.repo, newStages(h.gen, h.search), pool, nil, usecase.PipelineOptions{
		StoreRetryAttempts: 3,
		StoreRetryBase:     time.Millisecond,
	}, newTestLogger())
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.uc.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func (h *harness) get(t *testing.T, id string) *model.BlogJob {
	t.Helper()
	job, err := h.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return job
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errTransport = errors.New("dial tcp 10.0.0.1:443: connection refused")

func storeDown(job *model.BlogJob) error { return domain.ErrStoreUnavailable }
