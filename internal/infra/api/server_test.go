//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/api"
	"blog-job-pipeline/internal/usecase"
)

const testKey = "admin-key-123"

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type fixture struct {
	pipeline *MockPipeline
	status   *MockStatus
	janitor  *MockJanitor
	limiter  *MockLimiter
	deps     api.Deps
}

func newFixture() *fixture {
	f := &fixture{
		pipeline: &MockPipeline{},
		status:   &MockStatus{},
		janitor:  &MockJanitor{},
		limiter: &MockLimiter{AllowFunc: func(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
			return true, nil
		}},
	}
	f.deps = api.Deps{
		Pipeline:    f.pipeline,
		Status:      f.status,
		Janitor:     f.janitor,
		Auth:        api.NewAuthManager(testKey, "jwt-secret", time.Hour),
		Limiter:     f.limiter,
		CreateLimit: 5,
	}
	return f
}

func (f *fixture) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var rdr *bytes.Buffer
	if body != "" {
		rdr = bytes.NewBufferString(body)
	} else {
		rdr = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	api.NewServer(f.deps, newLogger()).Routes().ServeHTTP(rec, req)
	return rec
}

func sampleJob() *model.BlogJob {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	job, _ := model.NewBlogJob("job-1", "AI in education", model.Settings{}, now)
	job.Status = model.JobStatusFailed
	job.Error = &model.JobError{Stage: model.StageImageFinder, Reason: model.FailureReasonStage, Message: "ImageFinder: no images found", AtStatus: model.JobStatusRated}
	return job
}

func TestCreateJob(t *testing.T) {
	t.Run("should accept a new job", func(t *testing.T) {
		f := newFixture()
		var got usecase.SubmitRequest
		f.pipeline.SubmitFunc = func(ctx context.Context, req usecase.SubmitRequest) (string, error) {
			got = req
			return "01HZX", nil
		}
		rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"AI in education","settings":{"tone":"casual","length":"short"}}`, true)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d body=%s", rec.Code, rec.Body.String())
		}
		if got.Idea != "AI in education" || got.Settings.Tone != model.ToneCasual || got.Settings.Length != model.LengthShort {
			t.Errorf("unexpected submit request %+v", got)
		}
		if !strings.Contains(rec.Body.String(), `"trackingId":"01HZX"`) {
			t.Errorf("missing tracking id: %s", rec.Body.String())
		}
		if len(f.limiter.keys) != 1 || !strings.Contains(f.limiter.keys[0], "create_job") {
			t.Errorf("expected a create_job rate-limit key, got %v", f.limiter.keys)
		}
	})

	t.Run("should answer 200 on idempotent replay", func(t *testing.T) {
		f := newFixture()
		f.pipeline.SubmitFunc = func(ctx context.Context, req usecase.SubmitRequest) (string, error) {
			return req.TrackingID, domain.ErrAlreadyExists
		}
		rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"x","trackingId":"mine-1"}`, true)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mine-1") {
			t.Fatalf("want 200 with id, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("should map invalid input to 400", func(t *testing.T) {
		f := newFixture()
		f.pipeline.SubmitFunc = func(ctx context.Context, req usecase.SubmitRequest) (string, error) {
			return "", domain.ErrInvalidArgument
		}
		if rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":""}`, true); rec.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rec.Code)
		}
		if rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"x","settings":{"font":"serif"}}`, true); rec.Code != http.StatusBadRequest {
			t.Errorf("unknown settings must be rejected, got %d", rec.Code)
		}
	})

	t.Run("should return 429 when rate limited", func(t *testing.T) {
		f := newFixture()
		f.limiter.AllowFunc = func(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
			return false, nil
		}
		if rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"x"}`, true); rec.Code != http.StatusTooManyRequests {
			t.Errorf("want 429, got %d", rec.Code)
		}
	})

	t.Run("should fail open when the limiter is down", func(t *testing.T) {
		f := newFixture()
		f.limiter.AllowFunc = func(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
			return false, errors.New("redis down")
		}
		f.pipeline.SubmitFunc = func(ctx context.Context, req usecase.SubmitRequest) (string, error) { return "id-1", nil }
		if rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"x"}`, true); rec.Code != http.StatusAccepted {
			t.Errorf("want 202, got %d", rec.Code)
		}
	})

	t.Run("should require auth", func(t *testing.T) {
		f := newFixture()
		if rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"x"}`, false); rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
	})

	t.Run("should map store outages to 503", func(t *testing.T) {
		f := newFixture()
		f.pipeline.SubmitFunc = func(ctx context.Context, req usecase.SubmitRequest) (string, error) {
			return "", domain.ErrStoreUnavailable
		}
		if rec := f.do(http.MethodPost, "/api/v1/jobs", `{"idea":"x"}`, true); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("want 503, got %d", rec.Code)
		}
	})
}

func TestGetJob(t *testing.T) {
	t.Run("should render the public view without auth", func(t *testing.T) {
		f := newFixture()
		f.status.GetStatusFunc = func(ctx context.Context, id string) (*model.BlogJob, error) { return sampleJob(), nil }
		rec := f.do(http.MethodGet, "/api/v1/jobs/job-1", "", false)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var v api.JobView
		if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v.Status != "failed" || v.Error == nil || v.Error.Stage != "ImageFinder" || v.Error.Reason != "stage_failed" {
			t.Errorf("unexpected view %+v", v)
		}
		if rec.Header().Get("X-Trace-ID") == "" {
			t.Error("expected a trace id header")
		}
	})

	t.Run("should return 404 for unknown jobs", func(t *testing.T) {
		f := newFixture()
		f.status.GetStatusFunc = func(ctx context.Context, id string) (*model.BlogJob, error) { return nil, domain.ErrNotFound }
		if rec := f.do(http.MethodGet, "/api/v1/jobs/nope", "", false); rec.Code != http.StatusNotFound {
			t.Errorf("want 404, got %d", rec.Code)
		}
	})
}

func TestListJobs(t *testing.T) {
	f := newFixture()
	var got repository.JobFilter
	f.status.ListAllFunc = func(ctx context.Context, fl repository.JobFilter) ([]*model.BlogJob, error) {
		got = fl
		return []*model.BlogJob{sampleJob()}, nil
	}
	rec := f.do(http.MethodGet, "/api/v1/jobs?status=failed&status=completed&limit=10", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if got.Limit != 10 || len(got.Statuses) != 2 || got.Statuses[0] != model.JobStatusFailed {
		t.Errorf("unexpected filter %+v", got)
	}

	if rec := f.do(http.MethodGet, "/api/v1/jobs?limit=ten", "", true); rec.Code != http.StatusBadRequest {
		t.Errorf("want 400 for a bad limit, got %d", rec.Code)
	}
}

func TestJobActions(t *testing.T) {
	t.Run("should map a refused cancel to 409", func(t *testing.T) {
		f := newFixture()
		f.pipeline.CancelFunc = func(ctx context.Context, id string) (*model.BlogJob, error) {
			return nil, domain.ErrInvalidTransition
		}
		if rec := f.do(http.MethodPost, "/api/v1/jobs/job-1/cancel", "", true); rec.Code != http.StatusConflict {
			t.Errorf("want 409, got %d", rec.Code)
		}
	})

	t.Run("should parse the retried stage", func(t *testing.T) {
		f := newFixture()
		var got model.Stage
		f.pipeline.RetryStageFunc = func(ctx context.Context, id string, st model.Stage) (*model.BlogJob, error) {
			got = st
			return sampleJob(), nil
		}
		rec := f.do(http.MethodPost, "/api/v1/jobs/job-1/retry", `{"stage":"imagefinder"}`, true)
		if rec.Code != http.StatusOK || got != model.StageImageFinder {
			t.Errorf("want 200 and ImageFinder, got %d %q", rec.Code, got)
		}
		if rec := f.do(http.MethodPost, "/api/v1/jobs/job-1/retry", `{"stage":"Publisher"}`, true); rec.Code != http.StatusBadRequest {
			t.Errorf("want 400 for an unknown stage, got %d", rec.Code)
		}
	})

	t.Run("should accept a resume", func(t *testing.T) {
		f := newFixture()
		f.pipeline.ResumeFunc = func(ctx context.Context, id string) error { return nil }
		if rec := f.do(http.MethodPost, "/api/v1/jobs/job-1/resume", "", true); rec.Code != http.StatusAccepted {
			t.Errorf("want 202, got %d", rec.Code)
		}
	})
}

func TestCleanup(t *testing.T) {
	t.Run("should pass sweep options through", func(t *testing.T) {
		f := newFixture()
		var got usecase.SweepOptions
		f.janitor.SweepFunc = func(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error) {
			got = opts
			return &usecase.SweepResult{RemovedCount: 2, RemainingCount: 3, TotalCount: 5, DryRun: true}, nil
		}
		rec := f.do(http.MethodPost, "/api/v1/cleanup", `{"retentionHours":2,"statuses":["failed"],"dryRun":true}`, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d body=%s", rec.Code, rec.Body.String())
		}
		if got.RetentionHours != 2 || !got.DryRun || len(got.Statuses) != 1 || got.Statuses[0] != model.JobStatusFailed {
			t.Errorf("unexpected options %+v", got)
		}
		if !strings.Contains(rec.Body.String(), `"removedCount":2`) {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})

	t.Run("should run the default sweep on an empty body", func(t *testing.T) {
		f := newFixture()
		f.janitor.SweepFunc = func(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error) {
			if opts.RetentionHours != 0 || opts.DryRun || len(opts.Statuses) != 0 {
				t.Errorf("expected defaults, got %+v", opts)
			}
			return &usecase.SweepResult{}, nil
		}
		if rec := f.do(http.MethodPost, "/api/v1/cleanup", "", true); rec.Code != http.StatusOK {
			t.Errorf("want 200, got %d", rec.Code)
		}
	})

	t.Run("should run the default sweep on an empty chunked body", func(t *testing.T) {
		f := newFixture()
		called := false
		f.janitor.SweepFunc = func(ctx context.Context, opts usecase.SweepOptions) (*usecase.SweepResult, error) {
			called = true
			if opts.RetentionHours != 0 || opts.DryRun || len(opts.Statuses) != 0 {
				t.Errorf("expected defaults, got %+v", opts)
			}
			return &usecase.SweepResult{}, nil
		}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cleanup", io.NopCloser(strings.NewReader("")))
		req.ContentLength = -1
		req.Header.Set("Authorization", "Bearer "+testKey)
		rec := httptest.NewRecorder()
		api.NewServer(f.deps, newLogger()).Routes().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || !called {
			t.Errorf("want 200 with a sweep, got %d body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("should reject a malformed cleanup body", func(t *testing.T) {
		f := newFixture()
		if rec := f.do(http.MethodPost, "/api/v1/cleanup", `{"retentionHours":`, true); rec.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rec.Code)
		}
	})

	t.Run("should bind retention hours for stats", func(t *testing.T) {
		f := newFixture()
		f.janitor.StatsFunc = func(ctx context.Context, hours float64) (*usecase.JobStats, error) {
			if hours != 1.5 {
				t.Errorf("want 1.5 hours, got %v", hours)
			}
			return &usecase.JobStats{Total: 1, ByStatus: map[model.JobStatus]int{model.JobStatusCompleted: 1}, RetentionHours: hours}, nil
		}
		rec := f.do(http.MethodGet, "/api/v1/cleanup/stats?retentionHours=1.5", "", true)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"completed":1`) {
			t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestAuthToken(t *testing.T) {
	f := newFixture()

	t.Run("should refuse a wrong key", func(t *testing.T) {
		if rec := f.do(http.MethodPost, "/api/v1/auth/token", `{"apiKey":"nope"}`, false); rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
	})

	t.Run("should mint a token usable as bearer", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/auth/token", `{"apiKey":"`+testKey+`"}`, false)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&body)

		f.pipeline.ResumeFunc = func(ctx context.Context, id string) error { return nil }
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/job-1/resume", nil)
		req.Header.Set("Authorization", "Bearer "+body.Token)
		out := httptest.NewRecorder()
		api.NewServer(f.deps, newLogger()).Routes().ServeHTTP(out, req)
		if out.Code != http.StatusAccepted {
			t.Errorf("want 202 with jwt, got %d", out.Code)
		}
	})

	t.Run("should disable admin routes without a key", func(t *testing.T) {
		f := newFixture()
		f.deps.Auth = api.NewAuthManager("", "", 0)
		if rec := f.do(http.MethodGet, "/api/v1/jobs", "", true); rec.Code != http.StatusForbidden {
			t.Errorf("want 403, got %d", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	f := newFixture()
	f.deps.Probes = map[string]api.Probe{
		"store": func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	}
	rec := f.do(http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"store":"ok"`) || !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	f.deps.Probes = map[string]api.Probe{"store": func(ctx context.Context) error { return nil }}
	if rec := f.do(http.MethodGet, "/health", "", false); rec.Code != http.StatusOK {
		t.Errorf("want 200, got %d", rec.Code)
	}
}
