package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single page download.
	DefaultFetchTimeout = 30 * time.Second

	maxPageBytes = 20 << 20
	userAgent    = "Mozilla/5.0 (compatible; ragbot/0.1)"
)

// Fetcher downloads web pages and extracts their text.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher whose requests time out after timeout.
// A non-positive timeout uses DefaultFetchTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxPageBytes,
		logger:   slog.Default().With("component", "fetcher"),
	}
}

// Fetch downloads url and returns its visible text with navigation,
// header, footer, script and style elements removed. Pages larger than
// 20MB fail rather than being truncated.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("%w: %s: only http and https are supported", ErrFetchFailed, url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %s returned %s", ErrFetchFailed, url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrFetchFailed, url, f.maxBytes)
	}

	text, err := htmlText(strings.NewReader(Text(body)), pageDropTags)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoText
	}
	f.logger.Debug("fetched page", "url", url, "bytes", len(body), "chars", len(text))
	return text, nil
}
