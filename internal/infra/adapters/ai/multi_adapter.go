// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"strings"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

var _ adapter.TextGenerator = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes each call to a provider chosen from the model name.
type MultiAIAdapter struct {
	defaultProvider string // e.g., "openai" or "gemini"
	byProvider      map[string]adapter.TextGenerator
	modelToProvider map[string]string // model -> provider ("openai" | "gemini")
}

// NewMultiAIAdapter does not inject any default model; it only knows a default provider.
// Each provider adapter is responsible for its own default model.
func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.TextGenerator,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) (adapter.TextGenerator, error) {
	prov := m.resolveProvider(model)
	if a := m.byProvider[prov]; a != nil {
		return a, nil
	}
	// last resort: default provider, then anything configured
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return a, nil
	}
	for _, a := range m.byProvider {
		if a != nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no provider configured for model %q", domain.ErrProviderError, model)
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.pick(model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (string, adapter.Usage, error) {
	a, err := m.pick(req.Model)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return a.Generate(ctx, req)
}
