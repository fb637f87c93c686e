package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mautic-sync/internal/pkg/httputil"
	"github.com/ignite/mautic-sync/internal/service/dashboard"
)

// GetDashboard returns the overview of one client.
//
//	GET /api/dashboard/{clientId}
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ov, err := h.dashboard.Overview(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"success":        true,
		"client":         ov.Tenant,
		"summary":        ov.Summary,
		"contact_growth": ov.ContactGrowth,
		"top_campaigns":  ov.TopCampaigns,
		"top_emails":     ov.TopEmails,
	})
}

func pageParams(r *http.Request) (page, limit int) {
	return httputil.QueryInt(r, "page", 1, 0), httputil.QueryInt(r, "limit", dashboard.DefaultPageSize, dashboard.MaxPageSize)
}

func respondPage[T any](w http.ResponseWriter, key string, p *dashboard.Page[T], err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"success":    true,
		key:          p.Items,
		"pagination": httputil.NewPagination(p.Page, p.Limit, p.Total),
	})
}

// GetContacts lists contacts, newest first. ?search matches name, email and company.
//
//	GET /api/dashboard/{clientId}/contacts
func (h *Handlers) GetContacts(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	p, err := h.dashboard.Contacts(r.Context(), chi.URLParam(r, "clientId"), page, limit, r.URL.Query().Get("search"))
	respondPage(w, "contacts", p, err)
}

//	GET /api/dashboard/{clientId}/campaigns
func (h *Handlers) GetCampaigns(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	p, err := h.dashboard.Campaigns(r.Context(), chi.URLParam(r, "clientId"), page, limit)
	respondPage(w, "campaigns", p, err)
}

//	GET /api/dashboard/{clientId}/emails
func (h *Handlers) GetEmails(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	p, err := h.dashboard.Emails(r.Context(), chi.URLParam(r, "clientId"), page, limit)
	respondPage(w, "emails", p, err)
}

//	GET /api/dashboard/{clientId}/segments
func (h *Handlers) GetSegments(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	p, err := h.dashboard.Segments(r.Context(), chi.URLParam(r, "clientId"), page, limit)
	respondPage(w, "segments", p, err)
}
