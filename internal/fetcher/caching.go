package fetcher

import (
	"context"
	"net/http"

	"github.com/jaennil/guide_helper/backend/tileanim/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/metrics"
)

// CachingFetcher serves successful bodies from a byte cache and stores every
// new successful body in it. Cache failures degrade to a plain fetch.
type CachingFetcher struct {
	next   Fetcher
	cache  cache.TileCache
	logger logger.Logger
}

func NewCachingFetcher(next Fetcher, c cache.TileCache, l logger.Logger) *CachingFetcher {
	return &CachingFetcher{
		next:   next,
		cache:  c,
		logger: l,
	}
}

var _ Fetcher = (*CachingFetcher)(nil)

func (f *CachingFetcher) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	key := cache.TileCacheKey(url)

	data, exists, err := f.cache.Get(ctx, key)
	if err != nil {
		f.logger.Warn("failed to check cache, will fetch from upstream", "url", url, "error", err)
	} else if exists && len(data) > 0 {
		metrics.FetchCacheHits.Inc()
		return data, http.StatusOK, nil
	}
	metrics.FetchCacheMisses.Inc()

	body, status, err := f.next.Fetch(ctx, url)
	if err != nil || !successful(status) || len(body) == 0 {
		return body, status, err
	}

	if err := f.cache.Set(ctx, key, body); err != nil {
		f.logger.Warn("failed to store tile in cache", "url", url, "error", err)
	}

	return body, status, nil
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
