package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/edwinhu/sec-sro-rss/internal/config"
)

// maxBodyBytes caps response bodies; SEC listing pages are well under 1MB.
const maxBodyBytes = 10 << 20

const (
	acceptHeader   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	languageHeader = "en-US,en;q=0.5"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: HTTP %d", e.URL, e.Code)
}

// Client is the shared HTTP client for all sources. Every request carries
// browser-like headers (the SEC rejects default Go user agents) and passes
// through a single rate limiter so concurrent sources stay polite together.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	ua      string
}

func NewClient(cfg config.FetchConfig) *Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.RequestTimeout(), Transport: tr},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		ua:      cfg.UserAgent,
	}
}

// Get fetches url and returns the body, capped at 10MB. Non-2xx responses
// come back as *StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch: wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", languageHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: url}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", url, err)
	}
	return body, nil
}
