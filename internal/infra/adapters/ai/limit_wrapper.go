package ai

import (
	"context"

	"blog-job-pipeline/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.TextGenerator = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.TextGenerator
	sem   chan struct{}
}

// NewLimitedAI caps concurrent provider calls; waiting respects ctx.
func NewLimitedAI(inner adapter.TextGenerator, maxConcurrent int) adapter.TextGenerator {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) Generate(ctx context.Context, req adapter.GenerateRequest) (string, adapter.Usage, error) {
	if err := l.acquire(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, req)
}

func (l *limitedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return l.inner.CountTokens(ctx, model, messages)
}
