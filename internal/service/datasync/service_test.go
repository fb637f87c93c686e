package datasync_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/mautic"
	"github.com/ignite/mautic-sync/internal/pkg/distlock"
	"github.com/ignite/mautic-sync/internal/repository/memory"
	"github.com/ignite/mautic-sync/internal/secrets"
	"github.com/ignite/mautic-sync/internal/service/dashboard"
	"github.com/ignite/mautic-sync/internal/service/datasync"
)

var now = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

const (
	contactsJSON  = `{"total":2,"contacts":{"7":{"id":7,"points":3,"lastActive":"2026-04-01 10:00:00","fields":{"all":{"firstname":"Ada","email":"ada@example.com","company":""}}},"3":{"id":3,"fields":[]}}}`
	campaignsJSON = `{"total":1,"campaigns":{"5":{"id":5,"name":"Onboarding","isPublished":true,"stats":{"total_contacts":12}}}}`
	emailsJSON    = `{"total":2,"emails":{"1":{"id":1,"subject":"Hello","sentCount":"400","readCount":"100","clickCount":"10"},"2":{"id":2,"subject":"Draft","sentCount":0,"readCount":0}}}`
	segmentsJSON  = `{"total":1,"lists":{"9":{"id":9,"name":"Customers","isGlobal":"1","contactCount":"55","createdBy":2,"dateAdded":"2025-12-01T00:00:00+00:00"}}}`
)

// instance is a fake Mautic server for one tenant.
type instance struct {
	srv        *httptest.Server
	mu         sync.Mutex
	tokenCalls int
	paths      map[string]int
	bodies     map[string]string
	failPath   string

	// holdPath requests signal entered and wait for release
	holdPath string
	entered  chan struct{}
	release  chan struct{}
}

func newInstance(t *testing.T) *instance {
	in := &instance{
		paths: map[string]int{},
		bodies: map[string]string{
			"/api/contacts":  contactsJSON,
			"/api/campaigns": campaignsJSON,
			"/api/emails":    emailsJSON,
			"/api/segments":  segmentsJSON,
		},
	}
	in.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if in.holdPath != "" && r.URL.Path == in.holdPath {
			select {
			case in.entered <- struct{}{}:
			default:
			}
			<-in.release
		}
		in.mu.Lock()
		defer in.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/oauth/v2/token" {
			in.tokenCalls++
			fmt.Fprintf(w, `{"access_token":"access-%d","expires_in":3600}`, in.tokenCalls)
			return
		}
		in.paths[r.URL.Path]++
		if r.URL.Path == in.failPath {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"errors":[{"message":"boom"}]}`)
			return
		}
		fmt.Fprint(w, in.bodies[r.URL.Path])
	}))
	t.Cleanup(in.srv.Close)
	return in
}

func (in *instance) tokens() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.tokenCalls
}

func (in *instance) calls(path string) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.paths[path]
}

type fixture struct {
	store *memory.Store
	codec *secrets.Codec
	svc   *datasync.Service
}

func newFixture(t *testing.T, opts ...datasync.Option) *fixture {
	t.Helper()
	codec, err := secrets.NewCodec("sync-test")
	require.NoError(t, err)
	store := memory.NewStore()
	store.SetClock(func() time.Time { return now })
	opts = append([]datasync.Option{
		datasync.WithClock(func() time.Time { return now }),
		datasync.WithClientOptions(mautic.WithClock(func() time.Time { return now })),
	}, opts...)
	return &fixture{store: store, codec: codec, svc: datasync.NewService(store, store, codec, opts...)}
}

type tenantSeed struct {
	id, name  string
	baseURL   string
	access    *string
	refresh   *string
	expiresAt *time.Time
	inactive  bool
	created   time.Time
}

func sp(s string) *string { return &s }

func (f *fixture) addTenant(t *testing.T, seed tenantSeed) {
	t.Helper()
	enc := func(s string) string {
		out, err := f.codec.EncryptString(s)
		require.NoError(t, err)
		return out
	}
	encp := func(s *string) *string {
		out, err := f.codec.Encrypt(s)
		require.NoError(t, err)
		return out
	}
	if seed.created.IsZero() {
		seed.created = now
	}
	require.NoError(t, f.store.Create(context.Background(), &domain.Tenant{
		ID:             seed.id,
		Name:           seed.name,
		BaseURL:        seed.baseURL,
		ClientID:       enc("cid"),
		ClientSecret:   enc("csecret"),
		AccessToken:    encp(seed.access),
		RefreshToken:   encp(seed.refresh),
		TokenExpiresAt: seed.expiresAt,
		IsActive:       !seed.inactive,
		CreatedAt:      seed.created,
	}))
}

func validTenant(id, baseURL string) tenantSeed {
	exp := now.Add(time.Hour)
	return tenantSeed{id: id, name: "Tenant " + id, baseURL: baseURL, access: sp("live"), refresh: sp("r"), expiresAt: &exp}
}

func TestSyncContacts(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	res, err := f.svc.SyncContacts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Success: true, Synced: 2, Total: 2}, res)

	contacts, total, err := f.store.ListContacts(ctx, "a", dashboard.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	byRemote := map[int64]domain.Contact{}
	for _, c := range contacts {
		byRemote[c.RemoteID] = c
	}
	ada := byRemote[7]
	assert.Equal(t, "Ada", *ada.FirstName)
	assert.Equal(t, "ada@example.com", *ada.Email)
	assert.Nil(t, ada.Company, "empty strings normalize to nil")
	assert.Nil(t, ada.LastName)
	assert.Equal(t, 3, ada.Points)
	require.NotNil(t, ada.LastActive)
	assert.Nil(t, byRemote[3].Email)

	tenant, err := f.store.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, tenant.LastSyncAt)
	assert.Equal(t, now, *tenant.LastSyncAt)
}

func TestSync_TenantNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SyncSegments(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSync_NoTokenFailsWithoutNetwork(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	f.addTenant(t, tenantSeed{id: "a", name: "A", baseURL: in.srv.URL})

	_, err := f.svc.SyncCampaigns(context.Background(), "a")
	assert.ErrorIs(t, err, mautic.ErrNoToken)
	assert.Zero(t, in.calls("/api/campaigns"))
}

func TestSyncCampaigns_UpsertIdempotent(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	_, err := f.svc.SyncCampaigns(ctx, "a")
	require.NoError(t, err)

	in.mu.Lock()
	in.bodies["/api/campaigns"] = `{"total":1,"campaigns":{"5":{"id":5,"name":"Onboarding v2","isPublished":false,"stats":{"total_contacts":30}}}}`
	in.mu.Unlock()

	res, err := f.svc.SyncCampaigns(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)

	campaigns, total, err := f.store.ListCampaigns(ctx, "a", dashboard.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "Onboarding v2", campaigns[0].Name)
	assert.False(t, campaigns[0].IsPublished)
	assert.Equal(t, 30, campaigns[0].TotalContacts)
}

func TestSyncContacts_UpsertIdempotent(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	first, err := f.svc.SyncContacts(ctx, "a")
	require.NoError(t, err)
	second, err := f.svc.SyncContacts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	contacts, total, err := f.store.ListContacts(ctx, "a", dashboard.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total, "a second run updates rows in place")
	remote := map[int64]int{}
	for _, c := range contacts {
		remote[c.RemoteID]++
	}
	assert.Equal(t, map[int64]int{3: 1, 7: 1}, remote)
}

func TestSyncEmailStats_ComputesRates(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	_, err := f.svc.SyncEmailStats(ctx, "a")
	require.NoError(t, err)

	emails, _, err := f.store.ListEmails(ctx, "a", dashboard.ListFilter{})
	require.NoError(t, err)
	byRemote := map[int64]domain.EmailStat{}
	for _, e := range emails {
		byRemote[e.RemoteID] = e
	}
	assert.Equal(t, 25.0, byRemote[1].OpenRate)
	assert.Equal(t, 2.5, byRemote[1].ClickRate)
	assert.Zero(t, byRemote[2].OpenRate)
	assert.Zero(t, byRemote[2].ClickRate)
}

func TestSync_ExpiredTokenRefreshedAndPersisted(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	past := now.Add(-time.Minute)
	f.addTenant(t, tenantSeed{id: "a", name: "A", baseURL: in.srv.URL, access: sp("old"), refresh: sp("keep"), expiresAt: &past})
	ctx := context.Background()

	_, err := f.svc.SyncSegments(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, in.tokens())

	stored, err := f.store.Get(ctx, "a")
	require.NoError(t, err)
	access, err := f.codec.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	refresh, err := f.codec.Decrypt(stored.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "access-1", *access)
	assert.Equal(t, "keep", *refresh)
	assert.Equal(t, now.Add(time.Hour), *stored.TokenExpiresAt)

	// The stored session is now valid, so a second sync does not refresh.
	_, err = f.svc.SyncSegments(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, in.tokens())
}

func TestSync_RefreshTokenWithoutAccessToken(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	past := now.Add(-time.Minute)
	f.addTenant(t, tenantSeed{id: "a", name: "A", baseURL: in.srv.URL, refresh: sp("r"), expiresAt: &past})
	ctx := context.Background()

	_, err := f.svc.SyncContacts(ctx, "a")
	assert.ErrorIs(t, err, mautic.ErrNoToken)
	assert.Zero(t, in.tokens(), "no refresh is attempted")
	assert.Zero(t, in.calls("/api/contacts"))

	report, err := f.svc.SyncAllClients(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Error, mautic.ErrNoToken.Error())
	assert.Zero(t, in.tokens())
}

func TestSyncAllData(t *testing.T) {
	in := newInstance(t)
	f := newFixture(t)
	f.addTenant(t, validTenant("a", in.srv.URL))

	report, err := f.svc.SyncAllData(context.Background(), "a")
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, map[domain.ResourceType]domain.SyncResult{
		domain.ResourceContacts:  {Success: true, Synced: 2, Total: 2},
		domain.ResourceCampaigns: {Success: true, Synced: 1, Total: 1},
		domain.ResourceEmails:    {Success: true, Synced: 2, Total: 2},
		domain.ResourceSegments:  {Success: true, Synced: 1, Total: 1},
	}, report.Results)
}

func TestSyncAllData_StopsAtFirstFailure(t *testing.T) {
	in := newInstance(t)
	in.failPath = "/api/emails"
	f := newFixture(t)
	f.addTenant(t, validTenant("a", in.srv.URL))

	report, err := f.svc.SyncAllData(context.Background(), "a")

	var rerr *datasync.ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, domain.ResourceEmails, rerr.Resource)
	var remote *mautic.RemoteRequestError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "boom", remote.Message)

	assert.False(t, report.Success)
	assert.Empty(t, report.Results, "a failed run returns no partial results")
	assert.Equal(t, 1, in.calls("/api/campaigns"), "earlier resources ran")
	assert.Zero(t, in.calls("/api/segments"), "later resources are not attempted")

	campaigns, _, err := f.store.ListCampaigns(context.Background(), "a", dashboard.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, campaigns, 1, "records synced before the failure are kept")
}

func TestSyncAllClients_IsolatesFailures(t *testing.T) {
	good := newInstance(t)
	bad := newInstance(t)
	bad.failPath = "/api/contacts"
	skipped := newInstance(t)

	f := newFixture(t)
	a := validTenant("a", good.srv.URL)
	b := validTenant("b", bad.srv.URL)
	b.created = now.Add(time.Second)
	c := validTenant("c", skipped.srv.URL)
	c.inactive = true
	f.addTenant(t, a)
	f.addTenant(t, b)
	f.addTenant(t, c)

	report, err := f.svc.SyncAllClients(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Success)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "a", report.Results[0].TenantID)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "b", report.Results[1].TenantID)
	assert.Equal(t, "Tenant b", report.Results[1].TenantName)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, "contacts")
	assert.Equal(t, 1, report.Failed())

	assert.Zero(t, skipped.calls("/api/contacts"), "inactive tenants are never contacted")
}

func TestSyncAllClients_ConcurrentKeepsOrder(t *testing.T) {
	f := newFixture(t, datasync.WithConcurrency(3))
	var want []string
	for i := 0; i < 5; i++ {
		in := newInstance(t)
		seed := validTenant(fmt.Sprintf("t%d", i), in.srv.URL)
		seed.created = now.Add(time.Duration(i) * time.Second)
		f.addTenant(t, seed)
		want = append(want, seed.id)
	}

	report, err := f.svc.SyncAllClients(context.Background())
	require.NoError(t, err)

	var got []string
	for _, r := range report.Results {
		got = append(got, r.TenantID)
		assert.True(t, r.Success, r.Error)
	}
	assert.Equal(t, want, got)
}

func TestSyncAllData_LockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	locks := distlock.NewFactory(rdb, nil, time.Minute)

	in := newInstance(t)
	f := newFixture(t, datasync.WithLocks(locks))
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	held := locks.ForTenant("a")
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.SyncAllData(ctx, "a")
	assert.ErrorIs(t, err, datasync.ErrSyncInProgress)
	assert.Zero(t, in.calls("/api/contacts"))

	require.NoError(t, held.Release(ctx))
	_, err = f.svc.SyncAllData(ctx, "a")
	require.NoError(t, err)

	// the run released its own lock
	again := locks.ForTenant("a")
	ok, err = again.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncAllData_RenewsLockDuringLongRun(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	locks := distlock.NewFactory(rdb, nil, time.Minute)

	in := newInstance(t)
	in.holdPath = "/api/contacts"
	in.entered = make(chan struct{}, 1)
	in.release = make(chan struct{})
	f := newFixture(t, datasync.WithLocks(locks), datasync.WithLockHeartbeat(5*time.Millisecond))
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SyncAllData(ctx, "a")
		done <- err
	}()
	select {
	case <-in.entered:
	case <-time.After(5 * time.Second):
		close(in.release)
		t.Fatal("first run never reached the remote")
	}

	// twice the TTL passes while the first run is still in flight
	for i := 0; i < 4; i++ {
		mr.FastForward(30 * time.Second)
		time.Sleep(50 * time.Millisecond)
	}

	_, err := f.svc.SyncAllData(ctx, "a")
	assert.ErrorIs(t, err, datasync.ErrSyncInProgress)

	close(in.release)
	require.NoError(t, <-done)

	ok, err := locks.ForTenant("a").Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "the first run released its lock")
}

func TestSync_BreakerStopsCallingFailingTenant(t *testing.T) {
	in := newInstance(t)
	in.failPath = "/api/segments"
	f := newFixture(t, datasync.WithBreakers(datasync.BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour}))
	f.addTenant(t, validTenant("a", in.srv.URL))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.SyncSegments(ctx, "a")
		require.Error(t, err)
	}
	assert.Equal(t, 2, in.calls("/api/segments"))

	_, err := f.svc.SyncSegments(ctx, "a")
	var remote *mautic.RemoteRequestError
	require.True(t, errors.As(err, &remote))
	assert.Zero(t, remote.StatusCode)
}
