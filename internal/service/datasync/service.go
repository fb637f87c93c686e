package datasync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/mautic"
	"github.com/ignite/mautic-sync/internal/metrics"
	"github.com/ignite/mautic-sync/internal/pkg/distlock"
	"github.com/ignite/mautic-sync/internal/pkg/logger"
	"github.com/ignite/mautic-sync/internal/secrets"
)

// Service is the sync engine. All public methods are safe for concurrent use.
type Service struct {
	tenants     TenantStore
	entities    EntityStore
	codec       *secrets.Codec
	clientOpts  []mautic.Option
	concurrency int
	locks       *distlock.Factory
	heartbeat   time.Duration
	guards      *guards
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClientOptions applies gateway options to every client the engine builds.
func WithClientOptions(opts ...mautic.Option) Option {
	return func(s *Service) { s.clientOpts = append(s.clientOpts, opts...) }
}

// WithConcurrency bounds how many tenants SyncAllClients syncs at once.
// Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithLocks makes SyncAllData take a per-tenant distributed lock. A nil
// factory disables locking.
func WithLocks(f *distlock.Factory) Option {
	return func(s *Service) { s.locks = f }
}

// WithLockHeartbeat overrides how often a held tenant lock is renewed.
// The default is the factory's heartbeat.
func WithLockHeartbeat(d time.Duration) Option {
	return func(s *Service) { s.heartbeat = d }
}

// WithBreakers wraps each tenant's API calls in a circuit breaker that
// persists across runs.
func WithBreakers(b BreakerSettings) Option {
	return func(s *Service) { s.guards.breaker = &b }
}

// WithRateLimit caps outbound requests per second for each tenant.
func WithRateLimit(rps float64) Option {
	return func(s *Service) { s.guards.rps = rps }
}

// WithClock overrides time.Now for sync stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the sync engine.
func NewService(tenants TenantStore, entities EntityStore, codec *secrets.Codec, opts ...Option) *Service {
	s := &Service{
		tenants:     tenants,
		entities:    entities,
		codec:       codec,
		concurrency: 1,
		guards:      newGuards(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncContacts syncs all contacts of a tenant and stamps its last sync time.
func (s *Service) SyncContacts(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	return s.syncResource(ctx, tenantID, domain.ResourceContacts)
}

// SyncCampaigns syncs all campaigns of a tenant.
func (s *Service) SyncCampaigns(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	return s.syncResource(ctx, tenantID, domain.ResourceCampaigns)
}

// SyncEmailStats syncs all emails of a tenant with computed open and click rates.
func (s *Service) SyncEmailStats(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	return s.syncResource(ctx, tenantID, domain.ResourceEmails)
}

// SyncSegments syncs all segments of a tenant.
func (s *Service) SyncSegments(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	return s.syncResource(ctx, tenantID, domain.ResourceSegments)
}

// SyncAllData syncs every resource type of one tenant in order, stopping at
// the first failure with a *ResourceError and an empty report. Resources
// synced before the failure stay persisted. When locking is configured a
// concurrent run for the same tenant fails with ErrSyncInProgress.
func (s *Service) SyncAllData(ctx context.Context, tenantID string) (domain.SyncReport, error) {
	if s.locks != nil {
		lock := s.locks.ForTenant(tenantID)
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return domain.SyncReport{}, fmt.Errorf("acquire sync lock: %w", err)
		}
		if !ok {
			return domain.SyncReport{}, ErrSyncInProgress
		}

		hbCtx, stop := context.WithCancel(ctx)
		var hb sync.WaitGroup
		hb.Add(1)
		go func() {
			defer hb.Done()
			s.keepLock(hbCtx, tenantID, lock)
		}()
		defer func() {
			stop()
			hb.Wait()
			// the run context may already be cancelled
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("datasync: release sync lock", "tenant_id", tenantID, "error", err)
			}
		}()
	}

	report := domain.SyncReport{Results: make(map[domain.ResourceType]domain.SyncResult, len(domain.SyncOrder))}
	for _, rt := range domain.SyncOrder {
		res, err := s.syncResource(ctx, tenantID, rt)
		if err != nil {
			return domain.SyncReport{}, &ResourceError{Resource: rt, Err: err}
		}
		report.Results[rt] = res
	}
	report.Success = true
	return report, nil
}

// keepLock renews the tenant lock until ctx is done so runs longer than
// the lock TTL stay exclusive.
func (s *Service) keepLock(ctx context.Context, tenantID string, lock distlock.DistLock) {
	every := s.heartbeat
	if every <= 0 {
		every = s.locks.Heartbeat()
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := lock.Extend(ctx)
			switch {
			case err == nil:
			case errors.Is(err, distlock.ErrNotHeld):
				logger.Error("datasync: sync lock lost", "tenant_id", tenantID)
				return
			case ctx.Err() != nil:
				return
			default:
				logger.Warn("datasync: extend sync lock", "tenant_id", tenantID, "error", err)
			}
		}
	}
}

// SyncAllClients runs SyncAllData for every active tenant. A tenant's
// failure is recorded in its result and never stops the batch; the error
// return covers listing tenants only. Results follow ListActive order.
func (s *Service) SyncAllClients(ctx context.Context) (domain.BatchSyncReport, error) {
	tenants, err := s.tenants.ListActive(ctx)
	if err != nil {
		return domain.BatchSyncReport{}, fmt.Errorf("list active tenants: %w", err)
	}
	logger.Info("datasync: batch sync starting", "tenants", len(tenants), "concurrency", s.concurrency)

	results := make([]domain.TenantSyncResult, len(tenants))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range tenants {
		i, t := i, tenants[i]
		g.Go(func() error {
			results[i] = s.syncTenant(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	report := domain.BatchSyncReport{Success: true, Results: results}
	logger.Info("datasync: batch sync finished", "tenants", len(results), "failed", report.Failed())
	return report, nil
}

func (s *Service) syncTenant(ctx context.Context, t domain.Tenant) domain.TenantSyncResult {
	res := domain.TenantSyncResult{TenantID: t.ID, TenantName: t.Name}
	report, err := s.SyncAllData(ctx, t.ID)
	if err != nil {
		logger.Error("datasync: tenant sync failed", "tenant_id", t.ID, "tenant", t.Name, "error", err)
		metrics.BatchTenants.WithLabelValues(metrics.OutcomeFailure).Inc()
		res.Error = err.Error()
		return res
	}
	metrics.BatchTenants.WithLabelValues(metrics.OutcomeSuccess).Inc()
	res.Success = true
	res.Results = report.Results
	return res
}

func (s *Service) syncResource(ctx context.Context, tenantID string, rt domain.ResourceType) (res domain.SyncResult, err error) {
	started := time.Now()
	defer func() { metrics.RecordSync(string(rt), res.Synced, err, started) }()

	t, client, err := s.prepare(ctx, tenantID)
	if err != nil {
		return domain.SyncResult{}, err
	}

	var synced, total int
	switch rt {
	case domain.ResourceContacts:
		records, ferr := client.FetchAllContacts(ctx)
		if ferr != nil {
			return domain.SyncResult{}, ferr
		}
		total = len(records)
		synced, err = upsertEach(ctx, records, func(r mautic.Contact) error {
			c := r.ToDomain(t.ID)
			return s.entities.UpsertContact(ctx, &c)
		})
	case domain.ResourceCampaigns:
		records, ferr := client.FetchAllCampaigns(ctx)
		if ferr != nil {
			return domain.SyncResult{}, ferr
		}
		total = len(records)
		synced, err = upsertEach(ctx, records, func(r mautic.Campaign) error {
			c := r.ToDomain(t.ID)
			return s.entities.UpsertCampaign(ctx, &c)
		})
	case domain.ResourceEmails:
		records, ferr := client.FetchAllEmails(ctx)
		if ferr != nil {
			return domain.SyncResult{}, ferr
		}
		total = len(records)
		synced, err = upsertEach(ctx, records, func(r mautic.Email) error {
			e := r.ToDomain(t.ID)
			return s.entities.UpsertEmailStat(ctx, &e)
		})
	case domain.ResourceSegments:
		records, ferr := client.FetchAllSegments(ctx)
		if ferr != nil {
			return domain.SyncResult{}, ferr
		}
		total = len(records)
		synced, err = upsertEach(ctx, records, func(r mautic.Segment) error {
			sg := r.ToDomain(t.ID)
			return s.entities.UpsertSegment(ctx, &sg)
		})
	default:
		return domain.SyncResult{}, fmt.Errorf("unknown resource %q", rt)
	}
	if err != nil {
		return domain.SyncResult{Synced: synced, Total: total}, err
	}

	if rt == domain.ResourceContacts {
		if err := s.tenants.MarkSynced(ctx, t.ID, s.now().UTC()); err != nil {
			return domain.SyncResult{Synced: synced, Total: total}, fmt.Errorf("mark tenant synced: %w", err)
		}
	}

	logger.Info("datasync: resource synced", "tenant_id", t.ID, "resource", string(rt), "synced", synced, "total", total)
	return domain.SyncResult{Success: true, Synced: synced, Total: total}, nil
}

// prepare loads the tenant and returns a client with a usable session,
// refreshing and persisting tokens when the stored ones have expired.
func (s *Service) prepare(ctx context.Context, tenantID string) (*domain.Tenant, *mautic.Client, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	// a refresh token alone does not make a tenant syncable
	if !t.HasToken() {
		return nil, nil, mautic.ErrNoToken
	}

	opts := make([]mautic.Option, 0, len(s.clientOpts)+3)
	opts = append(opts, s.clientOpts...)
	opts = append(opts, s.guards.options(t.ID)...)
	opts = append(opts, mautic.WithTokenRefreshHook(s.persistTokens(t.ID)))

	client, err := mautic.NewClient(t, s.codec, opts...)
	if err != nil {
		return nil, nil, err
	}
	if t.RefreshToken != nil && client.IsTokenExpired() {
		if _, err := client.RefreshAccessToken(ctx); err != nil {
			return nil, nil, err
		}
	}
	return t, client, nil
}

// persistTokens returns the refresh hook that stores re-encrypted tokens.
func (s *Service) persistTokens(tenantID string) mautic.TokenRefreshHook {
	return func(ctx context.Context, ts domain.TokenSet) error {
		access, err := s.codec.EncryptString(ts.AccessToken)
		if err != nil {
			return err
		}
		var refresh *string
		if ts.RefreshToken != "" {
			enc, err := s.codec.EncryptString(ts.RefreshToken)
			if err != nil {
				return err
			}
			refresh = &enc
		}
		if err := s.tenants.UpdateTokens(ctx, tenantID, access, refresh, ts.ExpiresAt); err != nil {
			return err
		}
		logger.Info("datasync: refreshed tokens stored", "tenant_id", tenantID)
		return nil
	}
}

// upsertEach applies fn to each record in order and stops at the first error.
func upsertEach[T any](ctx context.Context, records []T, fn func(T) error) (int, error) {
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := fn(r); err != nil {
			return i, fmt.Errorf("upsert record %d of %d: %w", i+1, len(records), err)
		}
	}
	return len(records), nil
}
