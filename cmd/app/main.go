// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/config"
	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/domain/ports/repository"
	aiAdapters "blog-job-pipeline/internal/infra/adapters/ai"
	"blog-job-pipeline/internal/infra/adapters/images"
	tele "blog-job-pipeline/internal/infra/adapters/telegram"
	"blog-job-pipeline/internal/infra/api"
	"blog-job-pipeline/internal/infra/db/jobrepo"
	"blog-job-pipeline/internal/infra/db/memory"
	pg "blog-job-pipeline/internal/infra/db/postgres"
	"blog-job-pipeline/internal/infra/db/sqlite"
	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/infra/metrics"
	red "blog-job-pipeline/internal/infra/redis"
	"blog-job-pipeline/internal/infra/sched"
	"blog-job-pipeline/internal/infra/worker"
	"blog-job-pipeline/internal/usecase"
	"blog-job-pipeline/internal/usecase/stage"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Document store ----
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("store")
	}
	defer store.Close()

	// ---- Redis (optional) ----
	var redisClient *red.Client
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
	}

	// ---- Repositories and locks ----
	// writers always read the store; the cache only serves pollers
	jobs := jobrepo.NewJobRepository(store)
	statusJobs := jobs
	var locker adapter.JobLocker = usecase.NewKeyedLocker()
	var limiter api.RateLimiter
	if redisClient != nil {
		statusJobs = jobrepo.NewJobRepoCacheDecorator(jobs, redisClient, cfg.Pipeline.StatusCacheTTL, logger)
		locker = red.NewJobLocker(redisClient, cfg.Pipeline.LockTTL, logger)
		limiter = red.NewRateLimiter(redisClient)
	}

	// ---- Text generation ----
	gen, err := newTextGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.AI.Provider).Msg("ai adapter")
	}

	// ---- Image search ----
	var searcher adapter.ImageSearcher
	switch cfg.Images.Provider {
	case "pexels":
		px, err := images.NewPexelsSearcher(cfg.Images.PexelsKey, cfg.Images.BaseURL, cfg.Images.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("pexels")
		}
		searcher = px
	default:
		searcher = images.NewNoopSearcher()
	}
	if redisClient != nil {
		searcher = images.NewCachedSearcher(searcher, redisClient, cfg.Images.CacheTTL, logger)
	}

	// ---- Sweep reports ----
	var reporter adapter.SweepReporter = tele.NewNoopReporter(logger)
	if cfg.Telegram.Token != "" {
		bot, err := tele.NewBotReporter(&cfg.Telegram, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
		reporter = bot
	}

	// ---- Stages and use cases ----
	prompts := stage.DefaultPrompts()
	stageCfg := stage.Config{Model: cfg.AI.DefaultModel, Temperature: cfg.AI.Temperature, Timeout: cfg.AI.Timeout}
	stages := usecase.Stages{
		TopicRefiner: stage.NewTopicRefiner(gen, stageCfg, prompts),
		Drafter:      stage.NewDrafter(gen, stageCfg, prompts),
		Rater:        stage.NewRater(gen, stageCfg, prompts),
		Rewriter:     stage.NewRewriter(gen, stageCfg, prompts),
		ImageFinder:  stage.NewImageFinder(searcher, cfg.Images.MaxResults, cfg.Images.Timeout),
	}

	pool := worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, logger)
	pool.Start(ctx)

	pipelineUC := usecase.NewPipelineUseCase(jobs, stages, pool, locker, usecase.PipelineOptions{
		StoreRetryAttempts: cfg.Pipeline.StoreRetryAttempts,
		StoreRetryBase:     cfg.Pipeline.StoreRetryBase,
	}, logger)
	statusUC := usecase.NewStatusUseCase(statusJobs, logger)
	janitorUC := usecase.NewJanitorUseCase(jobs, locker, reporter, usecase.JanitorOptions{
		DefaultRetentionHours: cfg.Janitor.RetentionHours,
	}, logger)

	// ---- Background workers ----
	if cfg.Janitor.Enabled {
		jw := sched.NewJanitorWorker(cfg.Janitor.Interval, cfg.Janitor.RetentionHours, janitorUC, logger)
		go func() { _ = jw.Run(ctx) }()
	}
	if cfg.Reconciler.Enabled {
		rec := sched.NewJobReconciler(pipelineUC, jobs, cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, logger)
		go rec.Start(ctx)
	}

	// ---- HTTP ----
	probes := map[string]api.Probe{"store": store.Ping}
	if redisClient != nil {
		probes["redis"] = redisClient.Ping
	}
	srv := api.NewServer(api.Deps{
		Pipeline:    pipelineUC,
		Status:      statusUC,
		Janitor:     janitorUC,
		Auth:        api.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, cfg.Admin.SessionTTL),
		Limiter:     limiter,
		CreateLimit: cfg.Admin.CreateRateLimit,
		CORSOrigins: cfg.Admin.CORSOrigins,
		Probes:      probes,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	if err := pipelineUC.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("runs still in flight; the reconciler resumes them on next start")
	}
	cancel()
	pool.Stop()
	logger.Info().Msg("bye")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (repository.DocumentStore, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Store.URL)
		if err != nil {
			return nil, err
		}
		s := pg.NewDocumentStore(pool, pg.NewTxManager(pool))
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		logger.Info().Msg("store: postgres")
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.Store.SQLitePath).Msg("store: sqlite")
		return s, nil
	default:
		logger.Warn().Msg("store: memory; jobs are lost on restart")
		return memory.NewDocumentStore(), nil
	}
}

// newTextGenerator builds the configured provider behind the concurrency
// limit and the metrics wrapper.
func newTextGenerator(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.TextGenerator, error) {
	build := func(provider string) (adapter.TextGenerator, error) {
		switch provider {
		case "openai":
			return aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel, cfg.AI.OpenAIBaseURL)
		case "gemini":
			return aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.DefaultModel)
		}
		return aiAdapters.NewNoopAIAdapter(), nil
	}

	var (
		gen adapter.TextGenerator
		err error
	)
	switch cfg.AI.Provider {
	case "multi":
		byProvider := map[string]adapter.TextGenerator{}
		for name, key := range map[string]string{"openai": cfg.AI.OpenAIKey, "gemini": cfg.AI.GeminiKey} {
			if key == "" {
				continue
			}
			g, err := build(name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			byProvider[name] = g
		}
		if len(byProvider) == 0 {
			return nil, errors.New("multi provider needs at least one of openai_key or gemini_key")
		}
		def := "openai"
		if _, ok := byProvider[def]; !ok {
			def = "gemini"
		}
		gen = aiAdapters.NewMultiAIAdapter(def, byProvider, nil)
	default:
		gen, err = build(cfg.AI.Provider)
		if err != nil {
			return nil, err
		}
	}
	gen = aiAdapters.NewLimitedAI(gen, cfg.AI.ConcurrentLimit)
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("AI adapter ready")
	return aiAdapters.NewInstrumentedAI(gen, cfg.AI.Provider, cfg.AI.DefaultModel, logger), nil
}
