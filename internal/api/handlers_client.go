package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mautic-sync/internal/pkg/httputil"
	"github.com/ignite/mautic-sync/internal/service/tenant"
)

// ListClients returns every registered client, newest first.
//
//	GET /api/client/list
func (h *Handlers) ListClients(w http.ResponseWriter, r *http.Request) {
	views, err := h.tenants.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "clients": views})
}

// GetClient returns one client.
//
//	GET /api/client/{id}
func (h *Handlers) GetClient(w http.ResponseWriter, r *http.Request) {
	view, err := h.tenants.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "client": view})
}

// AddClient registers a client. When username and password are supplied the
// password grant runs first and nothing is stored if it fails.
//
//	POST /api/client/add
func (h *Handlers) AddClient(w http.ResponseWriter, r *http.Request) {
	var in tenant.RegisterInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	view, err := h.tenants.Register(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	msg := "Client added successfully"
	if !view.HasToken {
		msg = "Client added without a token; authenticate before syncing"
	}
	httputil.Created(w, map[string]interface{}{"success": true, "message": msg, "client": view})
}

// UpdateClient applies a partial update.
//
//	PUT /api/client/{id}
func (h *Handlers) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var in tenant.UpdateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	view, err := h.tenants.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "client": view})
}

// DeleteClient removes a client and everything synced for it.
//
//	DELETE /api/client/{id}
func (h *Handlers) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "message": "Client deleted successfully"})
}

// TestClient probes the client's Mautic instance. Remote failures are
// reported in the body with HTTP 200.
//
//	POST /api/client/{id}/test
func (h *Handlers) TestClient(w http.ResponseWriter, r *http.Request) {
	res, err := h.tenants.TestConnection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateClientToken runs the password grant and stores the new session.
//
//	POST /api/client/{id}/token
func (h *Handlers) UpdateClientToken(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if !httputil.Decode(w, r, &in) {
		return
	}
	view, err := h.tenants.Authenticate(r.Context(), chi.URLParam(r, "id"), in.Username, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "message": "Tokens updated successfully", "client": view})
}

// RefreshClientToken forces a refresh_token grant.
//
//	POST /api/client/{id}/refresh
func (h *Handlers) RefreshClientToken(w http.ResponseWriter, r *http.Request) {
	view, err := h.tenants.RefreshToken(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "message": "Token refreshed", "client": view})
}
