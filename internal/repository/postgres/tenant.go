// Package postgres implements the tenant, sync and dashboard repositories
// on PostgreSQL through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
)

// TenantRepo implements tenant.Repository and datasync.TenantStore.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

const tenantColumns = `id, name, base_url, client_id, client_secret, access_token, refresh_token,
		       token_expires_at, is_active, last_sync_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(s rowScanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var access, refresh sql.NullString
	var expires, synced sql.NullTime
	if err := s.Scan(
		&t.ID, &t.Name, &t.BaseURL, &t.ClientID, &t.ClientSecret, &access, &refresh,
		&expires, &t.IsActive, &synced, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.AccessToken = nullString(access)
	t.RefreshToken = nullString(refresh)
	t.TokenExpiresAt = nullTime(expires)
	t.LastSyncAt = nullTime(synced)
	return t, nil
}

func (r *TenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants
			(id, name, base_url, client_id, client_secret, access_token, refresh_token,
			 token_expires_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.Name, t.BaseURL, t.ClientID, t.ClientSecret, t.AccessToken, t.RefreshToken,
		t.TokenExpiresAt, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapError("create tenant", err)
	}
	return nil
}

func (r *TenantRepo) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get tenant", err)
	}
	return t, nil
}

func (r *TenantRepo) List(ctx context.Context) ([]domain.Tenant, error) {
	return r.list(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
}

func (r *TenantRepo) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	return r.list(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE is_active = TRUE ORDER BY created_at ASC`)
}

func (r *TenantRepo) list(ctx context.Context, q string) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TenantRepo) Update(ctx context.Context, t *domain.Tenant) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants
		SET name = $1, base_url = $2, client_id = $3, client_secret = $4,
		    is_active = $5, updated_at = $6
		WHERE id = $7
	`, t.Name, t.BaseURL, t.ClientID, t.ClientSecret, t.IsActive, t.UpdatedAt, t.ID)
	if err != nil {
		return mapError("update tenant", err)
	}
	return expectOne(res)
}

func (r *TenantRepo) UpdateTokens(ctx context.Context, id, accessToken string, refreshToken *string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants
		SET access_token = $1, refresh_token = COALESCE($2, refresh_token),
		    token_expires_at = $3, updated_at = NOW()
		WHERE id = $4
	`, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		return mapError("update tokens", err)
	}
	return expectOne(res)
}

func (r *TenantRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET last_sync_at = $1, updated_at = NOW() WHERE id = $2`, at, id)
	if err != nil {
		return mapError("mark synced", err)
	}
	return expectOne(res)
}

func (r *TenantRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return mapError("delete tenant", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
