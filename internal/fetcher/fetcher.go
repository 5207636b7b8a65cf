// Package fetcher provides the fetch-by-URL primitive the overlay downloads
// tile images with.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
)

// Fetcher reads the body behind url. A non-success status is not an error:
// it is returned together with whatever body the server sent. The error is
// reserved for transport failures.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, int, error)
}

type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
	Referer   string
	Headers   map[string]string
}

type HTTPFetcher struct {
	httpClient *http.Client
	cfg        HTTPConfig
	logger     logger.Logger
}

func NewHTTPFetcher(cfg HTTPConfig, l logger.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:    cfg,
		logger: l,
	}
}

var _ Fetcher = (*HTTPFetcher)(nil)

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	// tile servers such as OpenStreetMap reject anonymous clients
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read tile data: %w", err)
	}

	f.logger.Debug("fetched tile", "url", url, "status", resp.StatusCode, "size", len(data))

	return data, resp.StatusCode, nil
}
