package db

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFS_PairsUpAndDown(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrationFS_UniqueRemoteKeys(t *testing.T) {
	data, err := fs.ReadFile(MigrationFS, "migrations/000001_init.up.sql")
	require.NoError(t, err)
	schema := string(data)

	for _, key := range []string{
		"UNIQUE (tenant_id, mautic_contact_id)",
		"UNIQUE (tenant_id, mautic_campaign_id)",
		"UNIQUE (tenant_id, mautic_email_id)",
		"UNIQUE (tenant_id, mautic_segment_id)",
	} {
		assert.Contains(t, schema, key)
	}
	assert.Equal(t, 4, strings.Count(schema, "ON DELETE CASCADE"))
}

func TestMigrate_Validation(t *testing.T) {
	assert.ErrorContains(t, Migrate("", "up"), "DATABASE_URL")
	for _, dir := range []string{"", "UP", "sideways"} {
		assert.ErrorContains(t, Migrate("postgres://localhost/test", dir), "direction")
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "", PoolConfig{})
	assert.Error(t, err)
}
