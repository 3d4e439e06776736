package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blog-job-pipeline/internal/domain/ports/adapter"
)

var _ adapter.TextGenerator = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.TextGenerator for local/dev runs.
// JSON requests get a fixed rating, everything else echoes the prompt as HTML.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (string, adapter.Usage, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return "", adapter.Usage{}, ctx.Err()
	}
	if req.JSONOutput {
		return `{"score": 7, "review": "Clear structure; add a concrete example in the second section."}`, adapter.Usage{}, nil
	}
	last := ""
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	first := strings.TrimSpace(strings.SplitN(last, "\n", 2)[0])
	if len(first) > 80 {
		first = first[:80]
	}
	return fmt.Sprintf("<h2>%s</h2>\n<p>This is a noop draft.</p>", first), adapter.Usage{}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}
