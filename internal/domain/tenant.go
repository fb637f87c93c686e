package domain

import (
	"strings"
	"time"
)

// Tenant is one registered Mautic instance. ClientID, ClientSecret,
// AccessToken and RefreshToken hold encrypted envelopes and never leave the
// process in that form; use View for anything returned to callers.
type Tenant struct {
	ID             string     `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	BaseURL        string     `json:"base_url" db:"base_url"`
	ClientID       string     `json:"-" db:"client_id"`
	ClientSecret   string     `json:"-" db:"client_secret"`
	AccessToken    *string    `json:"-" db:"access_token"`
	RefreshToken   *string    `json:"-" db:"refresh_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at" db:"token_expires_at"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	LastSyncAt     *time.Time `json:"last_sync_at" db:"last_sync_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// HasToken reports whether the tenant holds an access token and can be synced.
func (t *Tenant) HasToken() bool {
	return t.AccessToken != nil && *t.AccessToken != ""
}

// View returns the caller-safe projection of the tenant.
func (t *Tenant) View() TenantView {
	return TenantView{
		ID:             t.ID,
		Name:           t.Name,
		BaseURL:        t.BaseURL,
		IsActive:       t.IsActive,
		HasToken:       t.HasToken(),
		TokenExpiresAt: t.TokenExpiresAt,
		LastSyncAt:     t.LastSyncAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// TenantView is what the API layer sees of a tenant.
type TenantView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	BaseURL        string     `json:"base_url"`
	IsActive       bool       `json:"is_active"`
	HasToken       bool       `json:"has_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NormalizeBaseURL strips surrounding whitespace and a single trailing slash.
func NormalizeBaseURL(u string) string {
	return strings.TrimSuffix(strings.TrimSpace(u), "/")
}

// TokenSet is the OAuth2 session state of a tenant.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}
