package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/adapter"
)

const maxImages = 5

// ImageFinder looks up 1 to 5 images for a title. Zero results is a hard failure.
type ImageFinder struct {
	search     adapter.ImageSearcher
	maxResults int
	timeout    time.Duration
}

func NewImageFinder(search adapter.ImageSearcher, maxResults int, timeout time.Duration) *ImageFinder {
	if maxResults <= 0 || maxResults > maxImages {
		maxResults = maxImages
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageFinder{search: search, maxResults: maxResults, timeout: timeout}
}

func (f *ImageFinder) Find(ctx context.Context, title string) Outcome[[]string] {
	query := strings.TrimSpace(title)
	if query == "" {
		return Failed[[]string](fmt.Errorf("%w: empty title", domain.ErrInvalidArgument))
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	urls, err := f.search.Search(ctx, query, f.maxResults)
	if err != nil {
		if !errors.Is(err, domain.ErrProviderError) {
			err = fmt.Errorf("%w: %v", domain.ErrProviderError, err)
		}
		return Failed[[]string](err)
	}
	out := normalizeURLs(urls, f.maxResults)
	if len(out) == 0 {
		return Failed[[]string](fmt.Errorf("%w for %q", domain.ErrNoImagesFound, query))
	}
	return OK(out)
}

func normalizeURLs(urls []string, max int) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, max)
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == max {
			break
		}
	}
	return out
}
