package stage

import (
	"context"
	"errors"
	"fmt"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

// generate renders the named prompt and calls the generator under the
// executor's own timeout. Any failure, including the timeout, comes back
// wrapping domain.ErrProviderError.
func generate(ctx context.Context, gen adapter.TextGenerator, cfg Config, p *Prompts, name string, data any, maxTokens int, jsonOut bool) (string, error) {
	sys, usr, err := p.Render(name, data)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	text, _, err := gen.Generate(ctx, adapter.GenerateRequest{
		Model: cfg.Model,
		Messages: []adapter.Message{
			{Role: "system", Content: sys},
			{Role: "user", Content: usr},
		},
		Temperature: cfg.Temperature,
		MaxTokens:   maxTokens,
		JSONOutput:  jsonOut,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrProviderError) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderError, err)
		}
		return "", err
	}
	return text, nil
}
