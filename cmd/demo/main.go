// Command demo runs one job end to end against the in-memory store and the
// noop providers, printing each status change.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/config"
	"blog-job-pipeline/internal/domain/model"
	aiAdapters "blog-job-pipeline/internal/infra/adapters/ai"
	"blog-job-pipeline/internal/infra/adapters/images"
	"blog-job-pipeline/internal/infra/db/jobrepo"
	"blog-job-pipeline/internal/infra/db/memory"
	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/infra/worker"
	"blog-job-pipeline/internal/usecase"
	"blog-job-pipeline/internal/usecase/stage"
)

func main() {
	idea := flag.String("idea", "AI in education", "rough blog idea")
	tone := flag.String("tone", "professional", "tone")
	length := flag.String("length", "short", "length")
	flag.Parse()

	logger := logging.New(config.LogConfig{Level: "info", Format: "console"}, true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	jobs := jobrepo.NewJobRepository(memory.NewDocumentStore())
	gen := aiAdapters.NewNoopAIAdapter()
	prompts := stage.DefaultPrompts()
	cfg := stage.Config{Temperature: 0.7, Timeout: 10 * time.Second}
	stages := usecase.Stages{
		TopicRefiner: stage.NewTopicRefiner(gen, cfg, prompts),
		Drafter:      stage.NewDrafter(gen, cfg, prompts),
		Rater:        stage.NewRater(gen, cfg, prompts),
		Rewriter:     stage.NewRewriter(gen, cfg, prompts),
		ImageFinder:  stage.NewImageFinder(images.NewNoopSearcher(), 3, 5*time.Second),
	}

	pool := worker.NewPool(2, 4, logger)
	pool.Start(ctx)
	defer pool.Stop()

	uc := usecase.NewPipelineUseCase(jobs, stages, pool, nil, usecase.PipelineOptions{}, logger)
	status := usecase.NewStatusUseCase(jobs, logger)

	id, err := uc.Submit(ctx, usecase.SubmitRequest{
		Idea:     *idea,
		Settings: model.Settings{Tone: model.Tone(*tone), Length: model.Length(*length)},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("submit")
	}

	last := model.JobStatus("")
	for {
		job, err := status.GetStatus(ctx, id)
		if err != nil {
			logger.Fatal().Err(err).Msg("status")
		}
		if job.Status != last {
			last = job.Status
			logger.Info().Str("status", string(job.Status)).Int("progress", job.Progress).Msg(job.Message)
		}
		if job.IsTerminal() {
			dump(logger, job)
			return
		}
		select {
		case <-ctx.Done():
			logger.Fatal().Err(ctx.Err()).Msg("job did not finish")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func dump(logger *zerolog.Logger, job *model.BlogJob) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		logger.Error().Err(err).Msg("encode")
	}
}
