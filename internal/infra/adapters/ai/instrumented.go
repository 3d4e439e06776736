package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/infra/logging"
	"blog-job-pipeline/internal/infra/metrics"
)

var _ adapter.TextGenerator = (*instrumentedAI)(nil)

// instrumentedAI records token usage and latency for every generation.
type instrumentedAI struct {
	inner        adapter.TextGenerator
	provider     string
	defaultModel string
	logger       *zerolog.Logger
}

func NewInstrumentedAI(inner adapter.TextGenerator, provider, defaultModel string, logger *zerolog.Logger) adapter.TextGenerator {
	return &instrumentedAI{inner: inner, provider: provider, defaultModel: defaultModel, logger: logger}
}

func (i *instrumentedAI) Generate(ctx context.Context, req adapter.GenerateRequest) (string, adapter.Usage, error) {
	start := time.Now()
	text, u, err := i.inner.Generate(ctx, req)
	model := modelOrDefault(req.Model, i.defaultModel)
	elapsed := time.Since(start)
	metrics.ObserveGeneration(i.provider, model, u.PromptTokens, u.CompletionTokens, elapsed.Milliseconds(), err == nil)

	log := logging.With(ctx, i.logger)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Dur("latency", elapsed).Msg("generation failed")
	} else {
		log.Debug().Str("model", model).Int("tokens_in", u.PromptTokens).Int("tokens_out", u.CompletionTokens).
			Dur("latency", elapsed).Msg("generation done")
	}
	return text, u, err
}

func (i *instrumentedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return i.inner.CountTokens(ctx, model, messages)
}
