package images

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"blog-job-pipeline/internal/domain/ports/adapter"
	"blog-job-pipeline/internal/infra/metrics"
	red "blog-job-pipeline/internal/infra/redis"
)

var _ adapter.ImageSearcher = (*cachedSearcher)(nil)

// cachedSearcher remembers non-empty results per query. Empty results are not
// cached so a later retry of ImageFinder asks the provider again.
type cachedSearcher struct {
	inner  adapter.ImageSearcher
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCachedSearcher(inner adapter.ImageSearcher, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) adapter.ImageSearcher {
	return &cachedSearcher{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func searchKey(query string, max int) string {
	h := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return "img_search:" + strconv.Itoa(max) + ":" + hex.EncodeToString(h[:])
}

func (c *cachedSearcher) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	key := searchKey(query, maxResults)
	val, err := c.cache.Get(ctx, key)
	if err == nil {
		var urls []string
		if json.Unmarshal([]byte(val), &urls) == nil && len(urls) > 0 {
			metrics.IncCacheRequest("image_search", "hit")
			return urls, nil
		}
	} else if !red.IsMiss(err) {
		c.logger.Warn().Err(err).Msg("image cache read failed")
	}

	metrics.IncCacheRequest("image_search", "miss")
	urls, err := c.inner.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(urls) > 0 {
		b, _ := json.Marshal(urls)
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("image cache write failed")
		}
	}
	return urls, nil
}
