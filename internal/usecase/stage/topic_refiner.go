package stage

import (
	"context"
	"fmt"
	"strings"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

const maxTitleRunes = 200

// TopicRefiner turns a raw idea into a title. It never degrades.
type TopicRefiner struct {
	gen     adapter.TextGenerator
	cfg     Config
	prompts *Prompts
}

func NewTopicRefiner(gen adapter.TextGenerator, cfg Config, prompts *Prompts) *TopicRefiner {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &TopicRefiner{gen: gen, cfg: cfg, prompts: prompts}
}

func (t *TopicRefiner) Refine(ctx context.Context, idea string) Outcome[string] {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return Failed[string](fmt.Errorf("%w: idea is empty", domain.ErrInvalidArgument))
	}
	text, err := generate(ctx, t.gen, t.cfg, t.prompts, "topic_refiner", struct{ Idea string }{idea}, t.cfg.tokens(64), false)
	if err != nil {
		return Failed[string](err)
	}
	title := cleanTitle(text)
	if title == "" {
		return Failed[string](domain.ErrGenerationEmpty)
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	return OK(title)
}
