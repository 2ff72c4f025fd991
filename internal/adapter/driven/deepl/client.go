// Package deepl implements the UsageUpstream port against the DeepL usage API.
package deepl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

// DefaultBaseURL is the free-tier API host.
const DefaultBaseURL = "https://api-free.deepl.com"

const (
	usagePath       = "/v2/usage"
	maxResponseSize = 1 << 20
)

// Compile-time interface satisfaction check.
var _ driven.UsageUpstream = (*Client)(nil)

// Client calls the upstream usage endpoint and hands back the raw status and
// body so the relay can forward them unchanged.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client with the following transport stack:
//  1. httpcache (honours upstream cache headers, keyed per Authorization value)
//  2. rateLimitedTransport (token bucket of rps requests per second)
//  3. http.DefaultTransport
//
// timeout bounds each call end to end. rps <= 0 disables rate limiting.
func NewClient(baseURL string, timeout time.Duration, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = &rateLimitedTransport{
		limiter: rate.NewLimiter(limit, 1),
		next:    http.DefaultTransport,
	}

	return NewClientWithHTTPClient(&http.Client{Transport: cache, Timeout: timeout}, baseURL)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client. This
// constructor is intended for testing.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Usage requests the character usage for secret. A non-nil error means the
// request never produced a response; any upstream status is returned as is.
func (c *Client) Usage(ctx context.Context, secret string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usagePath, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+strings.TrimSpace(secret))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("usage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("read usage response: %w", err)
	}
	return resp.StatusCode, body, nil
}
