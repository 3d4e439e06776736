package adapter

import "context"

// ImageSearcher finds stock images for a query.
type ImageSearcher interface {
	// Search returns up to maxResults image URLs, empty when nothing matches.
	// Transport failures wrap domain.ErrProviderError.
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
}
