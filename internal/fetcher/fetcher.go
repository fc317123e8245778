package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jumia-tools/phone-scraper/internal/ratelimit"
)

// Fetcher retrieves the raw HTML body for a URL. Implementations do not
// deduplicate URLs; the traversal engine is responsible for fetch-once
// semantics.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages over plain HTTP with the configured default
// headers, going through the politeness limiter before every request.
type HTTPFetcher struct {
	client  *http.Client
	limiter ratelimit.Limiter
	headers map[string]string
	logger  *slog.Logger
}

type Options struct {
	Timeout time.Duration
	Headers map[string]string
}

func New(limiter ratelimit.Limiter, opts Options, logger *slog.Logger) *HTTPFetcher {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		headers: opts.Headers,
		logger:  logger.With("component", "fetcher"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	f.logger.Debug("fetched page", "url", url, "bytes", len(body), "took", time.Since(start))
	return string(body), nil
}
