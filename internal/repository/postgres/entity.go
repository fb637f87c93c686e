package postgres

import (
	"context"
	"database/sql"

	"github.com/ignite/mautic-sync/internal/domain"
)

// EntityRepo implements datasync.EntityStore. Every upsert is a single
// INSERT ... ON CONFLICT statement on the (tenant_id, remote id) key and
// writes the stored id and timestamps back into the record.
type EntityRepo struct{ db *sql.DB }

// NewEntityRepo creates a Postgres-backed entity repository.
func NewEntityRepo(db *sql.DB) *EntityRepo { return &EntityRepo{db: db} }

func (r *EntityRepo) UpsertContact(ctx context.Context, c *domain.Contact) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mautic_contacts
			(tenant_id, mautic_contact_id, first_name, last_name, email, phone,
			 company, city, country, last_active, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, mautic_contact_id) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			email = EXCLUDED.email, phone = EXCLUDED.phone, company = EXCLUDED.company,
			city = EXCLUDED.city, country = EXCLUDED.country,
			last_active = EXCLUDED.last_active, points = EXCLUDED.points,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, c.TenantID, c.RemoteID, c.FirstName, c.LastName, c.Email, c.Phone,
		c.Company, c.City, c.Country, c.LastActive, c.Points,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return mapError("upsert contact", err)
	}
	return nil
}

func (r *EntityRepo) UpsertCampaign(ctx context.Context, c *domain.Campaign) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mautic_campaigns
			(tenant_id, mautic_campaign_id, name, description, is_published, total_contacts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, mautic_campaign_id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			is_published = EXCLUDED.is_published, total_contacts = EXCLUDED.total_contacts,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, c.TenantID, c.RemoteID, c.Name, c.Description, c.IsPublished, c.TotalContacts,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return mapError("upsert campaign", err)
	}
	return nil
}

func (r *EntityRepo) UpsertEmailStat(ctx context.Context, e *domain.EmailStat) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mautic_emails
			(tenant_id, mautic_email_id, subject, name, sent_count, read_count,
			 clicked_count, failed_count, open_rate, click_rate, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, mautic_email_id) DO UPDATE SET
			subject = EXCLUDED.subject, name = EXCLUDED.name,
			sent_count = EXCLUDED.sent_count, read_count = EXCLUDED.read_count,
			clicked_count = EXCLUDED.clicked_count, failed_count = EXCLUDED.failed_count,
			open_rate = EXCLUDED.open_rate, click_rate = EXCLUDED.click_rate,
			published_at = EXCLUDED.published_at, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, e.TenantID, e.RemoteID, e.Subject, e.Name, e.SentCount, e.ReadCount,
		e.ClickedCount, e.FailedCount, e.OpenRate, e.ClickRate, e.PublishedAt,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return mapError("upsert email", err)
	}
	return nil
}

func (r *EntityRepo) UpsertSegment(ctx context.Context, s *domain.Segment) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mautic_segments
			(tenant_id, mautic_segment_id, name, description, is_published, is_global,
			 contact_count, created_by, date_added, date_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, mautic_segment_id) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			is_published = EXCLUDED.is_published, is_global = EXCLUDED.is_global,
			contact_count = EXCLUDED.contact_count, created_by = EXCLUDED.created_by,
			date_added = EXCLUDED.date_added, date_modified = EXCLUDED.date_modified,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, s.TenantID, s.RemoteID, s.Name, s.Description, s.IsPublished, s.IsGlobal,
		s.ContactCount, s.CreatedBy, s.DateAdded, s.DateModified,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return mapError("upsert segment", err)
	}
	return nil
}
