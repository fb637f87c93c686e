package tenant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/mautic"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
	"github.com/ignite/mautic-sync/internal/secrets"
)

// Service implements tenant management. All public methods are safe for
// concurrent use if the underlying repository is.
type Service struct {
	repo       Repository
	codec      *secrets.Codec
	clientOpts []mautic.Option
	now        func() time.Time
}

// NewService creates a tenant service. clientOpts configure every gateway
// client the service builds.
func NewService(repo Repository, codec *secrets.Codec, clientOpts ...mautic.Option) *Service {
	return &Service{repo: repo, codec: codec, clientOpts: clientOpts, now: time.Now}
}

// RegisterInput is the payload for registering a tenant. Username and
// Password are optional; when both are set the password grant runs before
// anything is stored.
type RegisterInput struct {
	Name         string `json:"client_name"`
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// UpdateInput holds the mutable tenant fields. Nil and empty values are not applied.
type UpdateInput struct {
	Name         *string `json:"client_name,omitempty"`
	BaseURL      *string `json:"base_url,omitempty"`
	ClientID     *string `json:"client_id,omitempty"`
	ClientSecret *string `json:"client_secret,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

// Register validates, optionally authenticates, and persists a new tenant.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.TenantView, error) {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "client_name")
	}
	if strings.TrimSpace(in.BaseURL) == "" {
		missing = append(missing, "base_url")
	}
	if in.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if in.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}

	encID, err := s.codec.EncryptString(in.ClientID)
	if err != nil {
		return nil, err
	}
	encSecret, err := s.codec.EncryptString(in.ClientSecret)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &domain.Tenant{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		BaseURL:      domain.NormalizeBaseURL(in.BaseURL),
		ClientID:     encID,
		ClientSecret: encSecret,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if in.Username != "" && in.Password != "" {
		client, err := mautic.NewClient(t, s.codec, s.clientOpts...)
		if err != nil {
			return nil, err
		}
		ts, err := client.GetInitialToken(ctx, in.Username, in.Password)
		if err != nil {
			return nil, err
		}
		if err := s.applyTokens(t, ts); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	logger.Info("tenant: registered", "tenant_id", t.ID, "name", t.Name, "authenticated", t.HasToken())

	v := t.View()
	return &v, nil
}

// Get returns a single tenant view.
func (s *Service) Get(ctx context.Context, id string) (*domain.TenantView, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := t.View()
	return &v, nil
}

// List returns every tenant, newest first.
func (s *Service) List(ctx context.Context) ([]domain.TenantView, error) {
	tenants, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TenantView, 0, len(tenants))
	for i := range tenants {
		out = append(out, tenants[i].View())
	}
	return out, nil
}

// Update applies the non-empty fields of in, re-encrypting changed credentials.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.TenantView, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.BaseURL != nil && strings.TrimSpace(*in.BaseURL) != "" {
		t.BaseURL = domain.NormalizeBaseURL(*in.BaseURL)
	}
	if in.ClientID != nil && *in.ClientID != "" {
		if t.ClientID, err = s.codec.EncryptString(*in.ClientID); err != nil {
			return nil, err
		}
	}
	if in.ClientSecret != nil && *in.ClientSecret != "" {
		if t.ClientSecret, err = s.codec.EncryptString(*in.ClientSecret); err != nil {
			return nil, err
		}
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	v := t.View()
	return &v, nil
}

// Delete removes a tenant and its synced data.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("tenant: deleted", "tenant_id", id)
	return nil
}

// TestConnection probes the tenant's instance. Remote failures are reported
// in the result; the error covers lookup and decryption only.
func (s *Service) TestConnection(ctx context.Context, id string) (mautic.ConnectionResult, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return mautic.ConnectionResult{}, err
	}
	client, err := mautic.NewClient(t, s.codec, s.clientOpts...)
	if err != nil {
		return mautic.ConnectionResult{}, err
	}
	return client.TestConnection(ctx), nil
}

// Authenticate runs the password grant for an existing tenant and stores
// the resulting session.
func (s *Service) Authenticate(ctx context.Context, id, username, password string) (*domain.TenantView, error) {
	if username == "" || password == "" {
		return nil, ErrCredentialsRequired
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := mautic.NewClient(t, s.codec, s.clientOpts...)
	if err != nil {
		return nil, err
	}
	ts, err := client.GetInitialToken(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.storeTokens(ctx, t, ts)
}

// RefreshToken forces a refresh_token grant and stores the new session.
func (s *Service) RefreshToken(ctx context.Context, id string) (*domain.TenantView, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	client, err := mautic.NewClient(t, s.codec, s.clientOpts...)
	if err != nil {
		return nil, err
	}
	ts, err := client.RefreshAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.storeTokens(ctx, t, ts)
}

func (s *Service) storeTokens(ctx context.Context, t *domain.Tenant, ts domain.TokenSet) (*domain.TenantView, error) {
	if err := s.applyTokens(t, ts); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateTokens(ctx, t.ID, *t.AccessToken, t.RefreshToken, ts.ExpiresAt); err != nil {
		return nil, err
	}
	logger.Info("tenant: tokens updated", "tenant_id", t.ID, "expires_at", ts.ExpiresAt.Format(time.RFC3339))
	v := t.View()
	return &v, nil
}

// applyTokens encrypts ts onto t. An empty refresh token leaves t's unchanged.
func (s *Service) applyTokens(t *domain.Tenant, ts domain.TokenSet) error {
	access, err := s.codec.EncryptString(ts.AccessToken)
	if err != nil {
		return err
	}
	t.AccessToken = &access
	if ts.RefreshToken != "" {
		refresh, err := s.codec.EncryptString(ts.RefreshToken)
		if err != nil {
			return err
		}
		t.RefreshToken = &refresh
	}
	exp := ts.ExpiresAt
	t.TokenExpiresAt = &exp
	return nil
}
