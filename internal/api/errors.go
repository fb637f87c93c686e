package api

import (
	"errors"
	"net/http"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/mautic"
	"github.com/ignite/mautic-sync/internal/pkg/httputil"
	"github.com/ignite/mautic-sync/internal/service/datasync"
	"github.com/ignite/mautic-sync/internal/service/tenant"
)

const reauthHint = "Authenticate the client with POST /api/client/{id}/token, or delete and re-add it with username and password."

// errorBody is the JSON error envelope. Hint is set for errors the caller
// can fix by re-authenticating.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	httputil.JSON(w, status, errorBody{Error: msg, Code: code})
}

// writeError maps service errors to HTTP responses. Anything unrecognised
// is logged and reported as a generic 500 so internal details never leak.
func writeError(w http.ResponseWriter, err error) {
	var remote *mautic.RemoteRequestError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Client not found")
	case errors.Is(err, mautic.ErrNoToken):
		httputil.JSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "no_token", Hint: reauthHint})
	case errors.Is(err, tenant.ErrInvalidInput), errors.Is(err, tenant.ErrCredentialsRequired):
		respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, mautic.ErrAuthentication):
		respondError(w, http.StatusBadRequest, "authentication_failed", err.Error())
	case errors.Is(err, datasync.ErrSyncInProgress):
		respondError(w, http.StatusConflict, "sync_in_progress", err.Error())
	case errors.Is(err, domain.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, mautic.ErrTokenRefresh):
		httputil.JSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Code: "token_refresh_failed", Hint: reauthHint})
	case errors.As(err, &remote):
		respondError(w, http.StatusBadGateway, "remote_error", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
