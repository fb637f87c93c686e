package tenant

import (
	"context"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
)

// Repository defines the data access contract for tenants. Credential and
// token fields are stored exactly as given (encrypted envelopes).
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new tenant. The ID is assigned by the caller.
	Create(ctx context.Context, t *domain.Tenant) error

	// Get returns a single tenant. Returns domain.ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Tenant, error)

	// List returns all tenants, newest first.
	List(ctx context.Context) ([]domain.Tenant, error)

	// ListActive returns active tenants in registration order.
	ListActive(ctx context.Context) ([]domain.Tenant, error)

	// Update writes name, base URL, credentials and the active flag.
	Update(ctx context.Context, t *domain.Tenant) error

	// UpdateTokens replaces the stored OAuth2 session. A nil refresh token
	// leaves the stored one untouched.
	UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt time.Time) error

	// MarkSynced stamps the tenant's last successful contact sync.
	MarkSynced(ctx context.Context, id string, at time.Time) error

	// Delete removes a tenant and, by cascade, everything synced for it.
	Delete(ctx context.Context, id string) error
}
