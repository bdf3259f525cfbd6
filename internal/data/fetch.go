package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"
)

// maxFetchBytes bounds the size of a downloaded result file
const maxFetchBytes = 256 << 20

// Fetcher downloads the optional default result file
type Fetcher struct {
	logger *zap.Logger
	client *http.Client
}

// NewFetcher creates a fetcher with the given per-request timeout
func NewFetcher(logger *zap.Logger, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch performs a single GET. It is never retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	f.logger.Debug("Fetched default result file", zap.String("url", url), zap.Int("bytes", len(raw)))
	return raw, nil
}

// NameFromURL derives a file name for a fetched result from the last path
// segment of its URL
func NameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "default.json"
	}
	return path.Base(u.Path)
}
