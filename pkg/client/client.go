// Package client provides a typed HTTP client SDK for the invocca API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MCT-Salman/invocca/pkg/types"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	apiPrefix         = "/api/v1"
	maxResponseBytes  = 8 << 20
)

// Config holds client configuration.
type Config struct {
	// TokenRefresh optionally resolves a token dynamically when Token is empty.
	TokenRefresh func(ctx context.Context) (string, error)
	// BaseURL is the root URL of the API (for example: http://localhost:8080).
	BaseURL string
	// Token is the bearer token used for API requests.
	Token string
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// MaxRetries is the number of retry attempts for transient errors on
	// idempotent requests. Negative disables retries.
	MaxRetries int
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
	// UserAgent is sent on every request.
	UserAgent string
}

// Client is the typed HTTP SDK for the invocca API.
type Client struct {
	http    *http.Client
	baseURL string
	cfg     Config
	backoff func() backoff.BackOff
}

// RequestOption mutates an outgoing request.
type RequestOption func(*http.Request)

// IfMatch sends an If-Match precondition.
func IfMatch(etag string) RequestOption {
	return func(r *http.Request) {
		if etag != "" {
			r.Header.Set("If-Match", etag)
		}
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: BaseURL is required")
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "invocca-client"
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		http:    hc,
		baseURL: cfg.BaseURL,
		cfg:     cfg,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}, nil
}

// BaseURL returns the normalised API root.
func (c *Client) BaseURL() string { return c.baseURL }

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends one request, retrying transient failures of idempotent methods.
func (c *Client) do(ctx context.Context, method, path string, in any, opts ...RequestOption) (*response, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = b
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving token: %w", err)
	}

	op := func() (*response, error) {
		resp, err := c.send(ctx, method, path, payload, token, opts)
		if err == nil {
			return resp, nil
		}
		if !retryable(method, err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.backoff()),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries+1)),
	)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string, opts []RequestOption) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, newAPIError(resp.StatusCode, raw)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.cfg.Token != "" || c.cfg.TokenRefresh == nil {
		return c.cfg.Token, nil
	}
	return c.cfg.TokenRefresh(ctx)
}

func retryable(method string, err error) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
	default:
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Dashboard returns the caller's dashboard summary.
func (c *Client) Dashboard(ctx context.Context) (*types.Resource[types.Dashboard], error) {
	resp, err := c.do(ctx, http.MethodGet, apiPrefix+"/dashboard", nil)
	if err != nil {
		return nil, fmt.Errorf("getting dashboard: %w", err)
	}
	var out types.Resource[types.Dashboard]
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decoding dashboard: %w", err)
	}
	return &out, nil
}
