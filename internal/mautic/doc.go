// Package mautic is the client for one tenant's Mautic REST API.
//
// A Client is built from a stored tenant: it decrypts the tenant's
// credentials once, keeps the OAuth2 session (access token, refresh token,
// expiry) in memory, refreshes it before requests when it has expired, and
// pages through the contacts, campaigns, emails and segments collections.
//
// The client does not persist anything. Callers that need refreshed tokens
// stored register a hook with WithTokenRefreshHook.
package mautic
