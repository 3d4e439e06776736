package stage

import (
	"context"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

// Drafter writes the first HTML body. Provider failures and empty output
// degrade to an empty draft so the job keeps moving.
type Drafter struct {
	gen     adapter.TextGenerator
	cfg     Config
	prompts *Prompts
}

func NewDrafter(gen adapter.TextGenerator, cfg Config, prompts *Prompts) *Drafter {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Drafter{gen: gen, cfg: cfg, prompts: prompts}
}

func (d *Drafter) Draft(ctx context.Context, title string, settings model.Settings) Outcome[Draft] {
	data := struct {
		Title string
		Tone  model.Tone
		Words int
	}{title, settings.Tone, settings.TargetWords()}

	text, err := generate(ctx, d.gen, d.cfg, d.prompts, "drafter", data, bodyTokens(d.cfg, settings), false)
	if err != nil {
		return Degraded(Draft{}, err)
	}
	body := CleanHTML(text)
	if isBlank(body) {
		return Degraded(Draft{}, domain.ErrGenerationEmpty)
	}
	return OK(Draft{Body: body, WordCount: WordCount(body)})
}

// bodyTokens leaves room for markup on top of the target word count.
func bodyTokens(cfg Config, settings model.Settings) int {
	return cfg.tokens(settings.TargetWords() * 3)
}
