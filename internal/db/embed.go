// Package db opens the Postgres pool and applies the embedded schema
// migrations with golang-migrate.
package db

import "embed"

// MigrationFS holds the SQL migrations applied by Migrate and cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
