package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
	"blog-job-pipeline/internal/infra/metrics"
	red "blog-job-pipeline/internal/infra/redis"
	"blog-job-pipeline/internal/usecase"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSON(w, r, dst, false)
}

// decodeOptionalBody leaves dst untouched when the body is empty, whether or
// not the client sent a Content-Length.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSON(w, r, dst, true)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return fmt.Errorf("%w: request body is required", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

type tokenRequest struct {
	APIKey string `json:"apiKey"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Auth.Enabled() {
		writeError(w, http.StatusForbidden, "admin API is disabled")
		return
	}
	var req tokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if !s.deps.Auth.CheckKey(req.APIKey) {
		writeError(w, http.StatusUnauthorized, errInvalidToken.Error())
		return
	}
	tok, exp, err := s.deps.Auth.Mint()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: exp})
}

type createJobRequest struct {
	Idea       string       `json:"idea"`
	Settings   SettingsView `json:"settings"`
	TrackingID string       `json:"trackingId,omitempty"`
}

type createJobResponse struct {
	TrackingID string `json:"trackingId"`
	Status     string `json:"status,omitempty"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	if !s.allowCreate(r) {
		metrics.IncRateLimitTriggered()
		writeError(w, http.StatusTooManyRequests, "too many job submissions, try again later")
		return
	}
	var req createJobRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.deps.Pipeline.Submit(r.Context(), usecase.SubmitRequest{
		Idea:       req.Idea,
		Settings:   model.Settings{Tone: model.Tone(req.Settings.Tone), Length: model.Length(req.Settings.Length)},
		TrackingID: req.TrackingID,
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		writeJSON(w, http.StatusOK, createJobResponse{TrackingID: id})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createJobResponse{TrackingID: id, Status: string(model.JobStatusInit)})
}

// allowCreate fails open when the limiter itself is unavailable.
func (s *Server) allowCreate(r *http.Request) bool {
	if s.deps.Limiter == nil || s.deps.CreateLimit <= 0 {
		return true
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ok, err := s.deps.Limiter.Allow(r.Context(), red.ClientActionKey(ip, "create_job"), s.deps.CreateLimit, time.Minute)
	if err != nil {
		s.logger(r).Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}
	return ok
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Status.GetStatus(r.Context(), chi.URLParam(r, "trackingId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

type listResponse struct {
	Items []JobView `json:"items"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var (
		statuses []string
		limit    int
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &statuses); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
		return
	}
	f := repository.JobFilter{Limit: limit}
	for _, st := range statuses {
		f.Statuses = append(f.Statuses, model.JobStatus(st))
	}
	jobs, err := s.deps.Status.ListAll(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := listResponse{Items: make([]JobView, 0, len(jobs))}
	for _, j := range jobs {
		out.Items = append(out.Items, toJobView(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Pipeline.Cancel(r.Context(), chi.URLParam(r, "trackingId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

type retryRequest struct {
	Stage string `json:"stage"`
}

func (s *Server) retryStage(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := model.ParseStage(req.Stage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	job, err := s.deps.Pipeline.RetryStage(r.Context(), chi.URLParam(r, "trackingId"), st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trackingId")
	if err := s.deps.Pipeline.Resume(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createJobResponse{TrackingID: id})
}

type cleanupRequest struct {
	RetentionHours float64  `json:"retentionHours"`
	Statuses       []string `json:"statuses"`
	DryRun         bool     `json:"dryRun"`
}

type cleanupResponse struct {
	RemovedCount   int  `json:"removedCount"`
	RemainingCount int  `json:"remainingCount"`
	TotalCount     int  `json:"totalCount"`
	DryRun         bool `json:"dryRun"`
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	// an empty body means the default sweep
	if err := decodeOptionalBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	opts := usecase.SweepOptions{RetentionHours: req.RetentionHours, DryRun: req.DryRun}
	for _, st := range req.Statuses {
		opts.Statuses = append(opts.Statuses, model.JobStatus(st))
	}
	res, err := s.deps.Janitor.Sweep(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{
		RemovedCount:   res.RemovedCount,
		RemainingCount: res.RemainingCount,
		TotalCount:     res.TotalCount,
		DryRun:         res.DryRun,
	})
}

type statsResponse struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"byStatus"`
	OldCount       int            `json:"oldCount"`
	RetentionHours float64        `json:"retentionHours"`
}

func (s *Server) cleanupStats(w http.ResponseWriter, r *http.Request) {
	var hours float64
	if err := runtime.BindQueryParameter("form", true, false, "retentionHours", r.URL.Query(), &hours); err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err))
		return
	}
	st, err := s.deps.Janitor.Stats(r.Context(), hours)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := statsResponse{Total: st.Total, ByStatus: make(map[string]int, len(st.ByStatus)), OldCount: st.OldCount, RetentionHours: st.RetentionHours}
	for k, v := range st.ByStatus {
		out.ByStatus[string(k)] = v
	}
	writeJSON(w, http.StatusOK, out)
}
