package mautic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/pkg/httpretry"
	"github.com/ignite/mautic-sync/internal/secrets"
)

const (
	// PageSize is the number of records requested per collection page.
	PageSize = 100

	// DefaultTokenLifetime applies when a token response carries no expires_in.
	DefaultTokenLifetime = time.Hour

	defaultTimeout = 30 * time.Second
)

// TokenRefreshHook is called after every successful refresh_token grant.
type TokenRefreshHook func(ctx context.Context, tokens domain.TokenSet) error

// Client talks to one tenant's Mautic instance.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    *time.Time

	httpClient httpretry.HTTPDoer
	timeout    time.Duration
	retries    int
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	now        func() time.Time
	onRefresh  TokenRefreshHook
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport (useful for testing).
func WithHTTPClient(doer httpretry.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = doer }
}

// WithTimeout sets the per-request timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries enables retries on transient failures. Zero disables them.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithRateLimiter throttles outbound /api calls.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker routes /api calls through a circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[[]byte]) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithTokenRefreshHook registers a callback for refreshed tokens.
func WithTokenRefreshHook(h TokenRefreshHook) Option {
	return func(c *Client) { c.onRefresh = h }
}

// NewClient builds a client from a stored tenant, decrypting its
// credentials and tokens once.
func NewClient(t *domain.Tenant, codec *secrets.Codec, opts ...Option) (*Client, error) {
	clientID, err := codec.DecryptString(t.ClientID)
	if err != nil {
		return nil, fmt.Errorf("decrypt client id: %w", err)
	}
	clientSecret, err := codec.DecryptString(t.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt client secret: %w", err)
	}
	access, err := codec.Decrypt(t.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := codec.Decrypt(t.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	c := &Client{
		baseURL:      domain.NormalizeBaseURL(t.BaseURL),
		clientID:     clientID,
		clientSecret: clientSecret,
		expiresAt:    t.TokenExpiresAt,
		timeout:      defaultTimeout,
		now:          time.Now,
	}
	if access != nil {
		c.accessToken = *access
	}
	if refresh != nil {
		c.refreshToken = *refresh
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpretry.NewRetryClient(&http.Client{Timeout: c.timeout}, c.retries)
	}
	return c, nil
}

// Request performs an authenticated call to {base}/api{endpoint} and
// returns the raw JSON body. An expired token is refreshed first when a
// refresh token is held.
func (c *Client) Request(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error) {
	c.mu.Lock()
	hasAccess := c.accessToken != ""
	canRefresh := c.refreshToken != ""
	c.mu.Unlock()

	if !hasAccess {
		return nil, ErrNoToken
	}
	if c.IsTokenExpired() && canRefresh {
		if _, err := c.RefreshAccessToken(ctx); err != nil {
			return nil, err
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	call := func() ([]byte, error) { return c.doRequest(ctx, method, endpoint, body) }
	if c.breaker == nil {
		return call()
	}
	raw, err := c.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &RemoteRequestError{Endpoint: endpoint, Message: "circuit open for " + c.baseURL, Err: err}
	}
	return raw, err
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.mu.Lock()
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	c.mu.Unlock()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteRequestError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteRequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteRequestError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    remoteMessage(respBody, http.StatusText(resp.StatusCode)),
			Body:       respBody,
		}
	}
	return respBody, nil
}

// remoteMessage extracts errors[0].message from a Mautic error payload.
func remoteMessage(body []byte, fallback string) string {
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	if len(payload.Errors) > 0 && payload.Errors[0].Message != "" {
		return payload.Errors[0].Message
	}
	// older instances answer {"error": "...", "error_description": "..."}
	var s string
	if json.Unmarshal(payload.Error, &s) == nil && s != "" {
		return s
	}
	return fallback
}

// ConnectionResult is the outcome of a connectivity probe.
type ConnectionResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ContactTotal int    `json:"contact_total"`
}

// TestConnection probes the instance by reading its contact total. It never
// returns an error; failures are described in the result.
func (c *Client) TestConnection(ctx context.Context) ConnectionResult {
	total, err := c.FetchContactTotal(ctx)
	if err != nil {
		var rre *RemoteRequestError
		if errors.As(err, &rre) && rre.Message != "" {
			return ConnectionResult{Success: false, Message: rre.Message}
		}
		return ConnectionResult{Success: false, Message: err.Error()}
	}
	return ConnectionResult{Success: true, Message: "Connection successful", ContactTotal: total}
}
