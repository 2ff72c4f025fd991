// Package relay implements the UsageRelay port: it asks the relay server for a
// CSRF token and forwards usage checks through it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/keyquota/internal/domain/model"
	"github.com/ericfisherdev/keyquota/internal/domain/port/driven"
)

const (
	sessionPath = "/api/v1/session"
	usagePath   = "/api/v1/usage"

	// HeaderAuthKey carries the secret being checked.
	HeaderAuthKey = "X-DeepL-Auth-Key"
	// HeaderCSRFToken carries the session token obtained from Init.
	HeaderCSRFToken = "X-CSRF-Token"

	maxResponseSize = 1 << 20
)

// ErrNoToken is returned when the session endpoint answers without a token.
var ErrNoToken = errors.New("relay returned no csrf token")

// Compile-time interface satisfaction check.
var _ driven.UsageRelay = (*Client)(nil)

// UsageError is a non-2xx answer from the relay. Its Error text is what the
// user sees next to the failed key.
type UsageError struct {
	Status  int
	Message string
	Detail  string
}

func (e *UsageError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Client talks to the relay over HTTP. The session cookie lives in an
// in-memory jar and the CSRF token in memory only.
type Client struct {
	http    *http.Client
	baseURL string
	now     func() time.Time

	mu    sync.Mutex
	token string
}

// NewClient creates a Client for the relay at baseURL.
func NewClient(baseURL string) (*Client, error) {
	return NewClientWithHTTPClient(&http.Client{}, baseURL)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client. A cookie
// jar is attached when the client has none.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing relay URL: %w", err)
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Init obtains a fresh session token from the relay.
func (c *Client) Init(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sessionPath, nil)
	if err != nil {
		return fmt.Errorf("build session request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("session request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("session request: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return fmt.Errorf("decode session response: %w", err)
	}
	if body.Token == "" {
		return ErrNoToken
	}

	c.mu.Lock()
	c.token = body.Token
	c.mu.Unlock()
	return nil
}

// FetchUsage asks the relay for the usage of secret. When no token is held
// yet, Init is attempted first; its failure does not stop the request, the
// relay will reject it and that rejection is what the caller sees. A 403 means
// the relay no longer knows the session (it restarted, or the session
// expired), so the token is refreshed and the request repeated once.
func (c *Client) FetchUsage(ctx context.Context, secret string) (model.Usage, error) {
	token := c.currentToken()
	if token == "" {
		if err := c.Init(ctx); err == nil {
			token = c.currentToken()
		}
	}

	usage, err := c.fetchUsage(ctx, secret, token)

	var ue *UsageError
	if !errors.As(err, &ue) || ue.Status != http.StatusForbidden {
		return usage, err
	}

	c.clearToken(token)
	if initErr := c.Init(ctx); initErr != nil {
		return model.Usage{}, err
	}
	return c.fetchUsage(ctx, secret, c.currentToken())
}

func (c *Client) fetchUsage(ctx context.Context, secret, token string) (model.Usage, error) {
	q := url.Values{"t": {strconv.FormatInt(c.now().UnixMilli(), 10)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usagePath+"?"+q.Encode(), nil)
	if err != nil {
		return model.Usage{}, fmt.Errorf("build usage request: %w", err)
	}
	req.Header.Set(HeaderAuthKey, secret)
	req.Header.Set(HeaderCSRFToken, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Usage{}, fmt.Errorf("usage request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.Usage{}, fmt.Errorf("read usage response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Usage{}, decodeUsageError(resp.StatusCode, data)
	}

	var usage model.Usage
	if err := json.Unmarshal(data, &usage); err != nil {
		return model.Usage{}, fmt.Errorf("decode usage response: %w", err)
	}
	return usage, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// clearToken drops stale unless a concurrent Init already replaced it.
func (c *Client) clearToken(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
	}
}

// decodeUsageError builds a UsageError from an error body. Bodies that are not
// JSON objects keep the generic message.
func decodeUsageError(status int, data []byte) *UsageError {
	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	_ = json.Unmarshal(data, &body)

	e := &UsageError{Status: status, Message: body.Message, Detail: body.Detail}
	if e.Message == "" {
		e.Message = "Error"
	}
	return e
}
