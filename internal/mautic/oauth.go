package mautic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/metrics"
	"github.com/ignite/mautic-sync/internal/pkg/httpretry"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
)

// doerTransport lets oauth2 share the client's transport.
type doerTransport struct {
	doer httpretry.HTTPDoer
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.doer.Do(req)
}

func (c *Client) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: doerTransport{doer: c.httpClient}})
}

// IsTokenExpired reports whether the access token must be refreshed. An
// unknown expiry counts as expired.
func (c *Client) IsTokenExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expiresAt == nil {
		return true
	}
	return !c.now().Before(*c.expiresAt)
}

// GetInitialToken runs the password grant and installs the resulting
// session on the client.
func (c *Client) GetInitialToken(ctx context.Context, username, password string) (domain.TokenSet, error) {
	tok, err := c.oauthConfig().PasswordCredentialsToken(c.oauthContext(ctx), username, password)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("password", metrics.OutcomeFailure).Inc()
		logger.Error("mautic: initial token fetch failed", "base_url", c.baseURL, "error", err)
		return domain.TokenSet{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	metrics.TokenRefreshes.WithLabelValues("password", metrics.OutcomeSuccess).Inc()
	return c.install(tok, ""), nil
}

// RefreshAccessToken runs the refresh_token grant. The previous refresh
// token is kept when the server does not issue a new one. The refresh hook,
// if any, runs before returning.
func (c *Client) RefreshAccessToken(ctx context.Context) (domain.TokenSet, error) {
	c.mu.Lock()
	current := c.refreshToken
	c.mu.Unlock()
	if current == "" {
		return domain.TokenSet{}, fmt.Errorf("%w: no refresh token", ErrTokenRefresh)
	}

	src := c.oauthConfig().TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: current})
	tok, err := src.Token()
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("refresh_token", metrics.OutcomeFailure).Inc()
		logger.Error("mautic: token refresh failed", "base_url", c.baseURL, "error", err)
		return domain.TokenSet{}, fmt.Errorf("%w: %w", ErrTokenRefresh, err)
	}
	metrics.TokenRefreshes.WithLabelValues("refresh_token", metrics.OutcomeSuccess).Inc()

	ts := c.install(tok, current)
	if c.onRefresh != nil {
		if err := c.onRefresh(ctx, ts); err != nil {
			return ts, fmt.Errorf("persist refreshed tokens: %w", err)
		}
	}
	return ts, nil
}

// install stores a granted token, falling back to keepRefresh when the
// response omits refresh_token.
func (c *Client) install(tok *oauth2.Token, keepRefresh string) domain.TokenSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	} else {
		c.refreshToken = keepRefresh
	}
	exp := c.now().Add(tokenLifetime(tok))
	c.expiresAt = &exp

	return domain.TokenSet{AccessToken: c.accessToken, RefreshToken: c.refreshToken, ExpiresAt: exp}
}

// tokenLifetime reads expires_in from the raw response so expiry is
// computed against the client clock.
func tokenLifetime(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	var secs int64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = int64(v)
	case json.Number:
		secs, _ = v.Int64()
	case string:
		secs, _ = strconv.ParseInt(v, 10, 64)
	}
	if secs <= 0 {
		return DefaultTokenLifetime
	}
	return time.Duration(secs) * time.Second
}
