// Package dashboard serves read-only aggregates and listings over a
// tenant's synced data.
package dashboard
