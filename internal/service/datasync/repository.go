package datasync

import (
	"context"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
)

// TenantStore is the slice of the tenant repository the engine needs.
type TenantStore interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
	ListActive(ctx context.Context) ([]domain.Tenant, error)
	// UpdateTokens stores encrypted tokens; a nil refresh token keeps the old one.
	UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt time.Time) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

// EntityStore upserts synced records keyed on (TenantID, RemoteID). Each
// call is atomic: repeating it with the same record leaves one row holding
// the latest values.
type EntityStore interface {
	UpsertContact(ctx context.Context, c *domain.Contact) error
	UpsertCampaign(ctx context.Context, c *domain.Campaign) error
	UpsertEmailStat(ctx context.Context, e *domain.EmailStat) error
	UpsertSegment(ctx context.Context, s *domain.Segment) error
}
