package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

const evaluationFailed = "Evaluation failed."

var ratingSchema = jsonschema.MustCompileString("rating.json", `{
	"type": "object",
	"required": ["score", "review"],
	"properties": {
		"score": {"type": "integer", "minimum": 1, "maximum": 10},
		"review": {"type": "string", "minLength": 1}
	}
}`)

// Rater scores a body from 1 to 10. Anything other than a valid rating
// degrades to {0, "Evaluation failed."}.
type Rater struct {
	gen     adapter.TextGenerator
	cfg     Config
	prompts *Prompts
}

func NewRater(gen adapter.TextGenerator, cfg Config, prompts *Prompts) *Rater {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Rater{gen: gen, cfg: cfg, prompts: prompts}
}

func fallbackRating() model.Rating { return model.Rating{Score: 0, Review: evaluationFailed} }

func (r *Rater) Rate(ctx context.Context, body string, tone model.Tone) Outcome[model.Rating] {
	if isBlank(body) {
		return Degraded(fallbackRating(), fmt.Errorf("%w: nothing to rate", domain.ErrGenerationEmpty))
	}
	data := struct {
		Body string
		Tone model.Tone
	}{body, tone}

	text, err := generate(ctx, r.gen, r.cfg, r.prompts, "rater", data, r.cfg.tokens(400), true)
	if err != nil {
		return Degraded(fallbackRating(), err)
	}
	rating, err := ParseRating(text)
	if err != nil {
		return Degraded(fallbackRating(), err)
	}
	return OK(rating)
}

// ParseRating extracts the JSON object from text and validates it.
func ParseRating(text string) (model.Rating, error) {
	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return model.Rating{}, fmt.Errorf("%w: rating is not json", domain.ErrGenerationEmpty)
	}
	raw := []byte(text[start : end+1])

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.Rating{}, fmt.Errorf("%w: rating: %v", domain.ErrGenerationEmpty, err)
	}
	if err := ratingSchema.Validate(v); err != nil {
		return model.Rating{}, fmt.Errorf("%w: rating: %v", domain.ErrGenerationEmpty, err)
	}
	var out struct {
		Score  float64 `json:"score"`
		Review string  `json:"review"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return model.Rating{}, fmt.Errorf("%w: rating: %v", domain.ErrGenerationEmpty, err)
	}
	return model.Rating{Score: int(out.Score), Review: strings.TrimSpace(out.Review)}, nil
}
