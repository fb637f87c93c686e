// Package memory is an in-process implementation of the tenant, sync and
// dashboard repositories. It backs storage.type "memory" and the service
// tests; data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/service/dashboard"
)

type entityKey struct {
	tenantID string
	remoteID int64
}

// Store holds everything in maps guarded by one mutex.
type Store struct {
	mu     sync.RWMutex
	now    func() time.Time
	nextID int64

	tenants   map[string]*domain.Tenant
	contacts  map[entityKey]*domain.Contact
	campaigns map[entityKey]*domain.Campaign
	emails    map[entityKey]*domain.EmailStat
	segments  map[entityKey]*domain.Segment
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:       time.Now,
		tenants:   make(map[string]*domain.Tenant),
		contacts:  make(map[entityKey]*domain.Contact),
		campaigns: make(map[entityKey]*domain.Campaign),
		emails:    make(map[entityKey]*domain.EmailStat),
		segments:  make(map[entityKey]*domain.Segment),
	}
}

// SetClock overrides the timestamp source (useful for testing).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ========== Tenants ==========

func (s *Store) Create(_ context.Context, t *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		return fmt.Errorf("create tenant: id required")
	}
	if _, ok := s.tenants[t.ID]; ok {
		return fmt.Errorf("create tenant %s: %w", t.ID, domain.ErrConflict)
	}
	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.tenants[cp.ID] = &cp
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) List(_ context.Context) ([]domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.tenantSlice(func(*domain.Tenant) bool { return true })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListActive(_ context.Context) ([]domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.tenantSlice(func(t *domain.Tenant) bool { return t.IsActive })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) tenantSlice(keep func(*domain.Tenant) bool) []domain.Tenant {
	out := make([]domain.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if keep(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Update(_ context.Context, t *domain.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tenants[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Name = t.Name
	cur.BaseURL = t.BaseURL
	cur.ClientID = t.ClientID
	cur.ClientSecret = t.ClientSecret
	cur.IsActive = t.IsActive
	cur.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) UpdateTokens(_ context.Context, id, accessToken string, refreshToken *string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	access := accessToken
	t.AccessToken = &access
	if refreshToken != nil {
		refresh := *refreshToken
		t.RefreshToken = &refresh
	}
	exp := expiresAt
	t.TokenExpiresAt = &exp
	t.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) MarkSynced(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	ts := at
	t.LastSyncAt = &ts
	return nil
}

// Delete removes the tenant and its synced records.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.tenants, id)
	for k := range s.contacts {
		if k.tenantID == id {
			delete(s.contacts, k)
		}
	}
	for k := range s.campaigns {
		if k.tenantID == id {
			delete(s.campaigns, k)
		}
	}
	for k := range s.emails {
		if k.tenantID == id {
			delete(s.emails, k)
		}
	}
	for k := range s.segments {
		if k.tenantID == id {
			delete(s.segments, k)
		}
	}
	return nil
}

// ========== Upserts ==========

// upsert stores a copy of rec under key, keeping the surrogate id and
// creation time of an existing row, and writes both back into rec. meta
// exposes a record's id, created and updated fields.
func upsert[T any](s *Store, m map[entityKey]*T, key entityKey, rec *T, meta func(*T) (*int64, *time.Time, *time.Time)) error {
	if _, ok := s.tenants[key.tenantID]; !ok {
		return fmt.Errorf("tenant %s: %w", key.tenantID, domain.ErrNotFound)
	}
	now := s.now().UTC()
	cp := *rec
	id, created, updated := meta(&cp)
	if prev, ok := m[key]; ok {
		pid, pcreated, _ := meta(prev)
		*id, *created = *pid, *pcreated
	} else {
		s.nextID++
		*id, *created = s.nextID, now
	}
	*updated = now
	m[key] = &cp

	rid, rcreated, rupdated := meta(rec)
	*rid, *rcreated, *rupdated = *id, *created, *updated
	return nil
}

func (s *Store) UpsertContact(_ context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(s, s.contacts, entityKey{c.TenantID, c.RemoteID}, c, func(v *domain.Contact) (*int64, *time.Time, *time.Time) {
		return &v.ID, &v.CreatedAt, &v.UpdatedAt
	})
}

func (s *Store) UpsertCampaign(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(s, s.campaigns, entityKey{c.TenantID, c.RemoteID}, c, func(v *domain.Campaign) (*int64, *time.Time, *time.Time) {
		return &v.ID, &v.CreatedAt, &v.UpdatedAt
	})
}

func (s *Store) UpsertEmailStat(_ context.Context, e *domain.EmailStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(s, s.emails, entityKey{e.TenantID, e.RemoteID}, e, func(v *domain.EmailStat) (*int64, *time.Time, *time.Time) {
		return &v.ID, &v.CreatedAt, &v.UpdatedAt
	})
}

func (s *Store) UpsertSegment(_ context.Context, sg *domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsert(s, s.segments, entityKey{sg.TenantID, sg.RemoteID}, sg, func(v *domain.Segment) (*int64, *time.Time, *time.Time) {
		return &v.ID, &v.CreatedAt, &v.UpdatedAt
	})
}

// ========== Dashboard reads ==========

func collect[T any](m map[entityKey]*T, tenantID string) []T {
	var out []T
	for k, v := range m {
		if k.tenantID == tenantID {
			out = append(out, *v)
		}
	}
	return out
}

func paginate[T any](items []T, f dashboard.ListFilter) ([]T, int) {
	total := len(items)
	if f.Offset >= total {
		return nil, total
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return items[f.Offset:end], total
}

func (s *Store) Summary(_ context.Context, tenantID string, since time.Time) (dashboard.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contacts := collect(s.contacts, tenantID)
	emails := collect(s.emails, tenantID)
	sum := dashboard.Summary{
		TotalContacts:  len(contacts),
		TotalCampaigns: len(collect(s.campaigns, tenantID)),
		TotalSegments:  len(collect(s.segments, tenantID)),
		TotalEmails:    len(emails),
	}
	for _, c := range contacts {
		if !c.CreatedAt.Before(since) {
			sum.RecentContacts++
		}
	}
	var openTotal, clickTotal float64
	for _, e := range emails {
		sum.TotalEmailsSent += e.SentCount
		sum.TotalEmailsOpened += e.ReadCount
		sum.TotalEmailsClicked += e.ClickedCount
		sum.TotalEmailsFailed += e.FailedCount
		openTotal += e.OpenRate
		clickTotal += e.ClickRate
	}
	if len(emails) > 0 {
		sum.AvgOpenRate = openTotal / float64(len(emails))
		sum.AvgClickRate = clickTotal / float64(len(emails))
	}
	return sum, nil
}

func (s *Store) ContactGrowth(_ context.Context, tenantID string, since time.Time) ([]dashboard.GrowthPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, c := range collect(s.contacts, tenantID) {
		if c.CreatedAt.Before(since) {
			continue
		}
		counts[c.CreatedAt.UTC().Format("2006-01-02")]++
	}
	out := make([]dashboard.GrowthPoint, 0, len(counts))
	for day, n := range counts {
		out = append(out, dashboard.GrowthPoint{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) TopCampaigns(ctx context.Context, tenantID string, n int) ([]domain.Campaign, error) {
	out, _, err := s.ListCampaigns(ctx, tenantID, dashboard.ListFilter{Limit: n})
	return out, err
}

func (s *Store) TopEmails(_ context.Context, tenantID string, n int) ([]domain.EmailStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sent []domain.EmailStat
	for _, e := range collect(s.emails, tenantID) {
		if e.SentCount > 0 {
			sent = append(sent, e)
		}
	}
	sort.Slice(sent, func(i, j int) bool {
		if sent[i].OpenRate != sent[j].OpenRate {
			return sent[i].OpenRate > sent[j].OpenRate
		}
		return sent[i].ID < sent[j].ID
	})
	out, _ := paginate(sent, dashboard.ListFilter{Limit: n})
	return out, nil
}

func (s *Store) ListContacts(_ context.Context, tenantID string, f dashboard.ListFilter) ([]domain.Contact, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	var items []domain.Contact
	for _, c := range collect(s.contacts, tenantID) {
		if needle == "" || matches(needle, c.FirstName, c.LastName, c.Email, c.Company) {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	out, total := paginate(items, f)
	return out, total, nil
}

func matches(needle string, fields ...*string) bool {
	for _, f := range fields {
		if f != nil && strings.Contains(strings.ToLower(*f), needle) {
			return true
		}
	}
	return false
}

func (s *Store) ListCampaigns(_ context.Context, tenantID string, f dashboard.ListFilter) ([]domain.Campaign, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := collect(s.campaigns, tenantID)
	sort.Slice(items, func(i, j int) bool {
		if items[i].TotalContacts != items[j].TotalContacts {
			return items[i].TotalContacts > items[j].TotalContacts
		}
		return items[i].ID < items[j].ID
	})
	out, total := paginate(items, f)
	return out, total, nil
}

func (s *Store) ListEmails(_ context.Context, tenantID string, f dashboard.ListFilter) ([]domain.EmailStat, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := collect(s.emails, tenantID)
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a == nil && b == nil:
			return items[i].ID < items[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.After(*b)
		}
		return items[i].ID < items[j].ID
	})
	out, total := paginate(items, f)
	return out, total, nil
}

func (s *Store) ListSegments(_ context.Context, tenantID string, f dashboard.ListFilter) ([]domain.Segment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := collect(s.segments, tenantID)
	sort.Slice(items, func(i, j int) bool {
		if items[i].ContactCount != items[j].ContactCount {
			return items[i].ContactCount > items[j].ContactCount
		}
		return items[i].ID < items[j].ID
	})
	out, total := paginate(items, f)
	return out, total, nil
}
