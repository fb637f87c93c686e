package tenant

import "errors"

// Sentinel errors for the tenant service layer. Missing tenants surface as
// domain.ErrNotFound.
var (
	ErrInvalidInput        = errors.New("invalid tenant input")
	ErrCredentialsRequired = errors.New("username and password are required")
)
