package images

import (
	"context"
	"fmt"
	"net/url"

	"blog-job-pipeline/internal/domain/ports/adapter"
)

var _ adapter.ImageSearcher = (*NoopSearcher)(nil)

// NoopSearcher returns placeholder URLs for local/dev runs.
type NoopSearcher struct{}

func NewNoopSearcher() *NoopSearcher { return &NoopSearcher{} }

func (NoopSearcher) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	if maxResults <= 0 || maxResults > 3 {
		maxResults = 3
	}
	out := make([]string, 0, maxResults)
	for i := 1; i <= maxResults; i++ {
		out = append(out, fmt.Sprintf("https://placehold.co/1200x630?text=%s+%d", url.QueryEscape(query), i))
	}
	return out, nil
}
