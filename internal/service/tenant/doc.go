// Package tenant manages registered Mautic instances: registration with an
// optional password grant, credential updates, manual token updates,
// connection probes and removal.
//
// Credentials and tokens are encrypted with the secrets codec before they
// reach the repository; callers only ever see domain.TenantView.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package tenant
