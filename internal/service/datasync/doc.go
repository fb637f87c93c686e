// Package datasync pulls each tenant's contacts, campaigns, emails and
// segments from Mautic and upserts them into the local store.
//
// A per-resource sync loads the tenant, builds a gateway client, refreshes
// an expired session (persisting the new tokens), fetches every page and
// upserts record by record keyed on (tenant, remote id). SyncAllData runs
// the four resources in a fixed order and stops at the first failure.
// SyncAllClients runs SyncAllData for every active tenant, isolating
// failures per tenant.
package datasync
