package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/pkg/httputil"
)

// SyncClient runs a full sync of one client in the request.
//
//	POST /api/client/{id}/sync
func (h *Handlers) SyncClient(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.SyncAllData(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"success": report.Success,
		"message": "Data synced successfully",
		"results": report.Results,
	})
}

// SyncClientResource syncs a single resource type of one client.
//
//	POST /api/client/{id}/sync/{resource}
func (h *Handlers) SyncClientResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var run func(context.Context, string) (domain.SyncResult, error)
	switch domain.ResourceType(chi.URLParam(r, "resource")) {
	case domain.ResourceContacts:
		run = h.sync.SyncContacts
	case domain.ResourceCampaigns:
		run = h.sync.SyncCampaigns
	case domain.ResourceEmails:
		run = h.sync.SyncEmailStats
	case domain.ResourceSegments:
		run = h.sync.SyncSegments
	default:
		respondError(w, http.StatusBadRequest, "invalid_resource", "resource must be one of contacts, campaigns, emails, segments")
		return
	}

	res, err := run(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, res)
}

// SyncAllClients runs the batch sync over every active client. Per-client
// failures are reported in the results, not as an HTTP error.
//
//	POST /api/sync/all
func (h *Handlers) SyncAllClients(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.SyncAllClients(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, report)
}
