package stage

import (
	"context"
	"strings"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

// Rewriter revises the body with the rater's feedback. On failure it keeps
// the current body, minimally wrapped.
type Rewriter struct {
	gen     adapter.TextGenerator
	cfg     Config
	prompts *Prompts
}

func NewRewriter(gen adapter.TextGenerator, cfg Config, prompts *Prompts) *Rewriter {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Rewriter{gen: gen, cfg: cfg, prompts: prompts}
}

func (r *Rewriter) Rewrite(ctx context.Context, body, feedback string, settings model.Settings, title string) Outcome[Draft] {
	if strings.TrimSpace(feedback) == "" {
		feedback = "No feedback available. Improve structure and clarity."
	}
	data := struct {
		Title    string
		Body     string
		Feedback string
		Tone     model.Tone
	}{title, body, feedback, settings.Tone}

	fallback := func(err error) Outcome[Draft] {
		kept := wrapBody(body)
		return Degraded(Draft{Body: kept, WordCount: WordCount(kept)}, err)
	}

	text, err := generate(ctx, r.gen, r.cfg, r.prompts, "rewriter", data, bodyTokens(r.cfg, settings), false)
	if err != nil {
		return fallback(err)
	}
	out := CleanHTML(text)
	if isBlank(out) {
		return fallback(domain.ErrGenerationEmpty)
	}
	return OK(Draft{Body: out, WordCount: WordCount(out)})
}
