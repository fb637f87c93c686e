package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mautic-sync/internal/repository/memory"
	"github.com/ignite/mautic-sync/internal/secrets"
	"github.com/ignite/mautic-sync/internal/service/dashboard"
	"github.com/ignite/mautic-sync/internal/service/datasync"
	"github.com/ignite/mautic-sync/internal/service/tenant"
)

func fakeMautic(t *testing.T) *httptest.Server {
	bodies := map[string]string{
		"/api/contacts":  `{"total":1,"contacts":{"4":{"id":4,"fields":{"all":{"firstname":"Ada","email":"ada@example.com"}}}}}`,
		"/api/campaigns": `{"total":0,"campaigns":[]}`,
		"/api/emails":    `{"total":1,"emails":{"2":{"id":2,"subject":"Hi","sentCount":10,"readCount":5}}}`,
		"/api/segments":  `{"total":0,"lists":[]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/oauth/v2/token" {
			if r.FormValue("password") == "wrong" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"acc","refresh_token":"ref","expires_in":3600}`)
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	codec, err := secrets.NewCodec("api-test")
	require.NoError(t, err)
	store := memory.NewStore()
	h := NewHandlers(
		tenant.NewService(store, codec),
		datasync.NewService(store, store, codec),
		dashboard.NewService(store, store),
		nil,
	)
	return SetupRoutes(h, nil), store
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func addClient(t *testing.T, h http.Handler, baseURL string, withCreds bool) string {
	t.Helper()
	in := map[string]string{"client_name": "Acme", "base_url": baseURL, "client_id": "id", "client_secret": "secret"}
	if withCreds {
		in["username"], in["password"] = "admin", "pw"
	}
	rec, body := do(t, h, http.MethodPost, "/api/client/add", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	client := body["client"].(map[string]interface{})
	return client["id"].(string)
}

func TestHealth(t *testing.T) {
	h, _ := setupTestRouter(t)

	rec, body := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, body = do(t, h, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupTestRouter(t)
	rec, _ := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAddClient_Validation(t *testing.T) {
	h, _ := setupTestRouter(t)

	rec, body := do(t, h, http.MethodPost, "/api/client/add", map[string]string{"client_name": "Acme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["code"])

	req := httptest.NewRequest(http.MethodPost, "/api/client/add", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAddClient_BadCredentials(t *testing.T) {
	srv := fakeMautic(t)
	h, store := setupTestRouter(t)

	in := map[string]string{"client_name": "Acme", "base_url": srv.URL, "client_id": "id", "client_secret": "s", "username": "u", "password": "wrong"}
	rec, body := do(t, h, http.MethodPost, "/api/client/add", in)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "authentication_failed", body["code"])

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClientLifecycle(t *testing.T) {
	srv := fakeMautic(t)
	h, _ := setupTestRouter(t)
	id := addClient(t, h, srv.URL, false)

	rec, body := do(t, h, http.MethodGet, "/api/client/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	client := body["client"].(map[string]interface{})
	assert.Equal(t, false, client["has_token"])
	assert.NotContains(t, rec.Body.String(), "secret")

	rec, body = do(t, h, http.MethodPost, "/api/client/"+id+"/sync", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_token", body["code"])
	assert.NotEmpty(t, body["hint"])

	rec, body = do(t, h, http.MethodPost, "/api/client/"+id+"/token", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/client/"+id+"/token", map[string]string{"username": "admin", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/client/"+id+"/test", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = do(t, h, http.MethodPut, "/api/client/"+id, map[string]interface{}{"client_name": "Acme EU"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme EU", body["client"].(map[string]interface{})["name"])

	rec, body = do(t, h, http.MethodGet, "/api/client/list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["clients"], 1)

	rec, _ = do(t, h, http.MethodDelete, "/api/client/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body = do(t, h, http.MethodGet, "/api/client/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["code"])
}

func TestSyncAndDashboard(t *testing.T) {
	srv := fakeMautic(t)
	h, _ := setupTestRouter(t)
	id := addClient(t, h, srv.URL, true)

	rec, body := do(t, h, http.MethodPost, "/api/client/"+id+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	results := body["results"].(map[string]interface{})
	assert.Equal(t, float64(1), results["contacts"].(map[string]interface{})["synced"])

	rec, body = do(t, h, http.MethodPost, "/api/client/"+id+"/sync/emails", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["synced"])

	rec, _ = do(t, h, http.MethodPost, "/api/client/"+id+"/sync/widgets", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/dashboard/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["total_contacts"])
	assert.Equal(t, float64(50), summary["avg_open_rate"])

	rec, body = do(t, h, http.MethodGet, "/api/dashboard/"+id+"/contacts?search=ada&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["contacts"], 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(10), pagination["limit"])
	assert.Equal(t, float64(1), pagination["total_pages"])

	rec, body = do(t, h, http.MethodGet, "/api/dashboard/"+id+"/campaigns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["campaigns"])

	rec, _ = do(t, h, http.MethodGet, "/api/dashboard/missing/segments", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncAllClients(t *testing.T) {
	srv := fakeMautic(t)
	h, _ := setupTestRouter(t)
	addClient(t, h, srv.URL, true)
	addClient(t, h, srv.URL, false)

	rec, body := do(t, h, http.MethodPost, "/api/sync/all", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)

	failed := 0
	for _, r := range results {
		if !r.(map[string]interface{})["success"].(bool) {
			failed++
		}
	}
	assert.Equal(t, 1, failed, "the client without a token fails alone")
}

func TestUnknownRoute(t *testing.T) {
	h, _ := setupTestRouter(t)
	rec, _ := do(t, h, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetermineOverallStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]ComponentCheck
		want   string
	}{
		{"nothing configured", map[string]ComponentCheck{
			"database": {Status: "down", Message: notConfigured},
			"redis":    {Status: "down", Message: notConfigured},
		}, "healthy"},
		{"database down", map[string]ComponentCheck{
			"database": {Status: "down", Message: "ping failed"},
		}, "unhealthy"},
		{"redis down", map[string]ComponentCheck{
			"database": {Status: "up"},
			"redis":    {Status: "down", Message: "ping failed"},
		}, "degraded"},
		{"slow database", map[string]ComponentCheck{
			"database": {Status: "degraded"},
		}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, determineOverallStatus(tt.checks))
		})
	}
}
