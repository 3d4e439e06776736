// Package images holds image search providers.
package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/infra/metrics"
)

var _ adapter.ImageSearcher = (*PexelsSearcher)(nil)

// PexelsSearcher queries the Pexels photo search API.
type PexelsSearcher struct {
	apiKey string
	base   string // e.g., https://api.pexels.com/v1
	client *http.Client
}

func NewPexelsSearcher(apiKey, baseURL string, timeout time.Duration) (*PexelsSearcher, error) {
	if apiKey == "" {
		return nil, errors.New("pexels api key empty")
	}
	if baseURL == "" {
		baseURL = "https://api.pexels.com/v1"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PexelsSearcher{
		apiKey: apiKey,
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Original  string `json:"original"`
			Large2x   string `json:"large2x"`
			Large     string `json:"large"`
			Landscape string `json:"landscape"`
		} `json:"src"`
	} `json:"photos"`
}

func (p *PexelsSearcher) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(maxResults))
	q.Set("orientation", "landscape")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: pexels: %v", domain.ErrProviderError, err)
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.IncImageSearch("pexels", "error")
		return nil, fmt.Errorf("%w: pexels: %v", domain.ErrProviderError, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.IncImageSearch("pexels", "error")
		return nil, fmt.Errorf("%w: pexels http %d", domain.ErrProviderError, resp.StatusCode)
	}

	var payload pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		metrics.IncImageSearch("pexels", "error")
		return nil, fmt.Errorf("%w: pexels decode: %v", domain.ErrProviderError, err)
	}
	out := make([]string, 0, len(payload.Photos))
	for _, ph := range payload.Photos {
		for _, u := range []string{ph.Src.Large2x, ph.Src.Large, ph.Src.Landscape, ph.Src.Original} {
			if u != "" {
				out = append(out, u)
				break
			}
		}
		if len(out) == maxResults {
			break
		}
	}
	if len(out) == 0 {
		metrics.IncImageSearch("pexels", "empty")
	} else {
		metrics.IncImageSearch("pexels", "ok")
	}
	return out, nil
}
