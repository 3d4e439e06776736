package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/usecase"
)

// RateLimiter is satisfied by the Redis fixed-window limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Probe reports the health of one dependency.
type Probe func(ctx context.Context) error

type Deps struct {
	Pipeline usecase.PipelineUseCase
	Status   usecase.StatusUseCase
	Janitor  usecase.JanitorUseCase
	Auth     *AuthManager

	Limiter     RateLimiter // nil disables rate limiting
	CreateLimit int         // job submissions per client IP per minute

	CORSOrigins    []string
	Probes         map[string]Probe
	RequestTimeout time.Duration
}

// Server exposes the job pipeline over HTTP.
type Server struct {
	deps Deps
	log  *zerolog.Logger
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if deps.Auth == nil {
		deps.Auth = NewAuthManager("", "", 0)
	}
	l := logger.With().Str("component", "api").Logger()
	return &Server{deps: deps, log: &l}
}

func (s *Server) logger(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), s.log)
}

// Routes builds the full router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))

	origins := s.deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", traceHeader},
		ExposedHeaders: []string{traceHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.deps.RequestTimeout))

		r.Post("/auth/token", s.issueToken)
		r.Get("/jobs/{trackingId}", s.getJob)

		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.Middleware)
			r.Post("/jobs", s.createJob)
			r.Get("/jobs", s.listJobs)
			r.Post("/jobs/{trackingId}/cancel", s.cancelJob)
			r.Post("/jobs/{trackingId}/retry", s.retryStage)
			r.Post("/jobs/{trackingId}/resume", s.resumeJob)
			r.Post("/cleanup", s.cleanup)
			r.Get("/cleanup/stats", s.cleanupStats)
		})
	})
	return r
}
