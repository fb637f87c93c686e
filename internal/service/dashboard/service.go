package dashboard

import (
	"context"
	"math"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
)

const (
	recentWindow = 30 * 24 * time.Hour
	topN         = 5

	// DefaultPageSize applies when a page request carries no limit.
	DefaultPageSize = 50
	// MaxPageSize caps the limit of a page request.
	MaxPageSize = 500

	maxOffset = math.MaxInt32
)

// Service assembles dashboard views.
type Service struct {
	repo    Repository
	tenants TenantReader
	now     func() time.Time
}

// NewService creates a dashboard service.
func NewService(repo Repository, tenants TenantReader) *Service {
	return &Service{repo: repo, tenants: tenants, now: time.Now}
}

// Overview is the dashboard landing view of one tenant.
type Overview struct {
	Tenant        domain.TenantView  `json:"client"`
	Summary       Summary            `json:"summary"`
	ContactGrowth []GrowthPoint      `json:"contact_growth"`
	TopCampaigns  []domain.Campaign  `json:"top_campaigns"`
	TopEmails     []domain.EmailStat `json:"top_emails"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Overview returns counts, email totals, averages rounded to two decimals,
// the last 30 days of contact growth and the top campaigns and emails.
func (s *Service) Overview(ctx context.Context, tenantID string) (*Overview, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	since := s.now().Add(-recentWindow)

	sum, err := s.repo.Summary(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}
	sum.AvgOpenRate = domain.Round2(sum.AvgOpenRate)
	sum.AvgClickRate = domain.Round2(sum.AvgClickRate)

	growth, err := s.repo.ContactGrowth(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}
	campaigns, err := s.repo.TopCampaigns(ctx, tenantID, topN)
	if err != nil {
		return nil, err
	}
	emails, err := s.repo.TopEmails(ctx, tenantID, topN)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Tenant:        t.View(),
		Summary:       sum,
		ContactGrowth: nonNil(growth),
		TopCampaigns:  nonNil(campaigns),
		TopEmails:     nonNil(emails),
	}, nil
}

// Contacts lists a tenant's contacts, optionally searching names, email and company.
func (s *Service) Contacts(ctx context.Context, tenantID string, page, limit int, search string) (*Page[domain.Contact], error) {
	return list(ctx, s, tenantID, page, limit, search, s.repo.ListContacts)
}

// Campaigns lists a tenant's campaigns.
func (s *Service) Campaigns(ctx context.Context, tenantID string, page, limit int) (*Page[domain.Campaign], error) {
	return list(ctx, s, tenantID, page, limit, "", s.repo.ListCampaigns)
}

// Emails lists a tenant's email statistics.
func (s *Service) Emails(ctx context.Context, tenantID string, page, limit int) (*Page[domain.EmailStat], error) {
	return list(ctx, s, tenantID, page, limit, "", s.repo.ListEmails)
}

// Segments lists a tenant's segments.
func (s *Service) Segments(ctx context.Context, tenantID string, page, limit int) (*Page[domain.Segment], error) {
	return list(ctx, s, tenantID, page, limit, "", s.repo.ListSegments)
}

func list[T any](ctx context.Context, s *Service, tenantID string, page, limit int, search string,
	fn func(context.Context, string, ListFilter) ([]T, int, error)) (*Page[T], error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	// pages past maxOffset are empty anyway
	offset := maxOffset
	if page-1 < maxOffset/limit {
		offset = (page - 1) * limit
	}
	items, total, err := fn(ctx, tenantID, ListFilter{Search: search, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &Page[T]{Items: nonNil(items), Page: page, Limit: limit, Total: total}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
