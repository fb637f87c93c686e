package mautic

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned before any network call when the tenant has
	// never been authenticated.
	ErrNoToken = errors.New("mautic: no access token available, authenticate with username/password or set tokens manually")

	// ErrAuthentication wraps a failed password grant.
	ErrAuthentication = errors.New("mautic: failed to get initial access token")

	// ErrTokenRefresh wraps a failed refresh_token grant.
	ErrTokenRefresh = errors.New("mautic: failed to refresh access token")
)

// RemoteRequestError is a non-2xx response or a transport failure on an
// /api call. StatusCode is 0 when no response was received.
type RemoteRequestError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

func (e *RemoteRequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("mautic: request %s failed: %s", e.Endpoint, e.Message)
	}
	return fmt.Sprintf("mautic: request %s failed (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *RemoteRequestError) Unwrap() error { return e.Err }

// Temporary reports whether the failure looks like an outage rather than a
// rejected request.
func (e *RemoteRequestError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
