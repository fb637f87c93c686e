package dashboard

import (
	"context"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
)

// Repository defines the read queries behind the dashboard.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Summary returns counts and email totals. RecentContacts counts
	// contacts first stored at or after since.
	Summary(ctx context.Context, tenantID string, since time.Time) (Summary, error)

	// ContactGrowth returns per-day counts of contacts stored since, oldest day first.
	ContactGrowth(ctx context.Context, tenantID string, since time.Time) ([]GrowthPoint, error)

	// TopCampaigns returns the n campaigns with the most contacts.
	TopCampaigns(ctx context.Context, tenantID string, n int) ([]domain.Campaign, error)

	// TopEmails returns the n sent emails with the highest open rate.
	TopEmails(ctx context.Context, tenantID string, n int) ([]domain.EmailStat, error)

	// ListContacts returns contacts newest first, filtered by Search.
	ListContacts(ctx context.Context, tenantID string, f ListFilter) ([]domain.Contact, int, error)

	// ListCampaigns returns campaigns ordered by contact count.
	ListCampaigns(ctx context.Context, tenantID string, f ListFilter) ([]domain.Campaign, int, error)

	// ListEmails returns emails ordered by publish date, newest first.
	ListEmails(ctx context.Context, tenantID string, f ListFilter) ([]domain.EmailStat, int, error)

	// ListSegments returns segments ordered by contact count.
	ListSegments(ctx context.Context, tenantID string, f ListFilter) ([]domain.Segment, int, error)
}

// TenantReader looks up the tenant a dashboard belongs to.
type TenantReader interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
}

// ListFilter controls pagination. Search applies to contacts only and
// matches first name, last name, email or company.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// Summary holds the raw aggregates of one tenant.
type Summary struct {
	TotalContacts      int     `json:"total_contacts"`
	TotalCampaigns     int     `json:"total_campaigns"`
	TotalSegments      int     `json:"total_segments"`
	TotalEmails        int     `json:"total_emails"`
	TotalEmailsSent    int     `json:"total_emails_sent"`
	TotalEmailsOpened  int     `json:"total_emails_opened"`
	TotalEmailsClicked int     `json:"total_emails_clicked"`
	TotalEmailsFailed  int     `json:"total_emails_failed"`
	AvgOpenRate        float64 `json:"avg_open_rate"`
	AvgClickRate       float64 `json:"avg_click_rate"`
	RecentContacts     int     `json:"recent_contacts_count"`
}

// GrowthPoint is one day of contact growth.
type GrowthPoint struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}
