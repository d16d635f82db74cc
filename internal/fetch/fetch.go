// Package fetch defines the asset-fetching contract the grammar
// resolver consumes, plus a default implementation that handles
// http(s) URLs and local file paths.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fetcher retrieves grammar binaries and highlight query text. The
// transport behind it is out of the engine's scope; implementations
// must honor context cancellation.
type Fetcher interface {
	FetchBinary(ctx context.Context, url string) ([]byte, error)
	FetchText(ctx context.Context, url string) (string, error)
}

const defaultTimeout = 15 * time.Second

// Client fetches over HTTP, or from disk when the URL has a file
// scheme or no scheme at all.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

func (c *Client) FetchBinary(ctx context.Context, url string) ([]byte, error) {
	return c.fetch(ctx, url)
}

func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	data, err := c.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if path, ok := localPath(url); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return data, nil
}

func localPath(url string) (string, bool) {
	if rest, ok := strings.CutPrefix(url, "file://"); ok {
		return rest, true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return url, true
}
