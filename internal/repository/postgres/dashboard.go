package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
	"github.com/ignite/mautic-sync/internal/service/dashboard"
)

// DashboardRepo implements dashboard.Repository.
type DashboardRepo struct{ db *sql.DB }

// NewDashboardRepo creates a Postgres-backed dashboard repository.
func NewDashboardRepo(db *sql.DB) *DashboardRepo { return &DashboardRepo{db: db} }

func (r *DashboardRepo) Summary(ctx context.Context, tenantID string, since time.Time) (dashboard.Summary, error) {
	var s dashboard.Summary
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM mautic_contacts WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM mautic_campaigns WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM mautic_segments WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM mautic_contacts WHERE tenant_id = $1 AND created_at >= $2)
	`, tenantID, since).Scan(&s.TotalContacts, &s.TotalCampaigns, &s.TotalSegments, &s.RecentContacts)
	if err != nil {
		return s, mapError("summary counts", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(sent_count), 0), COALESCE(SUM(read_count), 0),
		       COALESCE(SUM(clicked_count), 0), COALESCE(SUM(failed_count), 0),
		       COALESCE(AVG(open_rate), 0)::float8, COALESCE(AVG(click_rate), 0)::float8
		FROM mautic_emails
		WHERE tenant_id = $1
	`, tenantID).Scan(&s.TotalEmails, &s.TotalEmailsSent, &s.TotalEmailsOpened,
		&s.TotalEmailsClicked, &s.TotalEmailsFailed, &s.AvgOpenRate, &s.AvgClickRate)
	if err != nil {
		return s, mapError("summary emails", err)
	}
	return s, nil
}

func (r *DashboardRepo) ContactGrowth(ctx context.Context, tenantID string, since time.Time) ([]dashboard.GrowthPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM mautic_contacts
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY day
		ORDER BY day
	`, tenantID, since)
	if err != nil {
		return nil, mapError("contact growth", err)
	}
	defer rows.Close()

	var out []dashboard.GrowthPoint
	for rows.Next() {
		var p dashboard.GrowthPoint
		if err := rows.Scan(&p.Date, &p.Count); err != nil {
			return nil, fmt.Errorf("scan growth: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *DashboardRepo) TopCampaigns(ctx context.Context, tenantID string, n int) ([]domain.Campaign, error) {
	out, _, err := r.ListCampaigns(ctx, tenantID, dashboard.ListFilter{Limit: n})
	return out, err
}

func (r *DashboardRepo) TopEmails(ctx context.Context, tenantID string, n int) ([]domain.EmailStat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+emailColumns+`
		FROM mautic_emails
		WHERE tenant_id = $1 AND sent_count > 0
		ORDER BY open_rate DESC, id
		LIMIT $2
	`, tenantID, n)
	if err != nil {
		return nil, mapError("top emails", err)
	}
	return collectRows(rows, scanEmail)
}

const contactColumns = `id, tenant_id, mautic_contact_id, first_name, last_name, email, phone,
	company, city, country, last_active, points, created_at, updated_at`

func scanContact(s rowScanner) (domain.Contact, error) {
	var c domain.Contact
	var first, last, email, phone, company, city, country sql.NullString
	var active sql.NullTime
	err := s.Scan(&c.ID, &c.TenantID, &c.RemoteID, &first, &last, &email, &phone,
		&company, &city, &country, &active, &c.Points, &c.CreatedAt, &c.UpdatedAt)
	c.FirstName, c.LastName, c.Email = nullString(first), nullString(last), nullString(email)
	c.Phone, c.Company = nullString(phone), nullString(company)
	c.City, c.Country = nullString(city), nullString(country)
	c.LastActive = nullTime(active)
	return c, err
}

func (r *DashboardRepo) ListContacts(ctx context.Context, tenantID string, f dashboard.ListFilter) ([]domain.Contact, int, error) {
	where := `tenant_id = $1`
	args := []interface{}{tenantID}
	if s := strings.TrimSpace(f.Search); s != "" {
		where += ` AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2 OR company ILIKE $2)`
		args = append(args, "%"+escapeLike(s)+"%")
	}
	return listPage(ctx, r.db, "mautic_contacts", contactColumns, where,
		"created_at DESC, id DESC", args, f, scanContact)
}

const campaignColumns = `id, tenant_id, mautic_campaign_id, name, description, is_published,
	total_contacts, created_at, updated_at`

func scanCampaign(s rowScanner) (domain.Campaign, error) {
	var c domain.Campaign
	var desc sql.NullString
	err := s.Scan(&c.ID, &c.TenantID, &c.RemoteID, &c.Name, &desc, &c.IsPublished,
		&c.TotalContacts, &c.CreatedAt, &c.UpdatedAt)
	c.Description = nullString(desc)
	return c, err
}

func (r *DashboardRepo) ListCampaigns(ctx context.Context, tenantID string, f dashboard.ListFilter) ([]domain.Campaign, int, error) {
	return listPage(ctx, r.db, "mautic_campaigns", campaignColumns, `tenant_id = $1`,
		"total_contacts DESC, id", []interface{}{tenantID}, f, scanCampaign)
}

const emailColumns = `id, tenant_id, mautic_email_id, subject, name, sent_count, read_count,
	clicked_count, failed_count, open_rate::float8, click_rate::float8, published_at,
	created_at, updated_at`

func scanEmail(s rowScanner) (domain.EmailStat, error) {
	var e domain.EmailStat
	var subject, name sql.NullString
	var published sql.NullTime
	err := s.Scan(&e.ID, &e.TenantID, &e.RemoteID, &subject, &name, &e.SentCount, &e.ReadCount,
		&e.ClickedCount, &e.FailedCount, &e.OpenRate, &e.ClickRate, &published,
		&e.CreatedAt, &e.UpdatedAt)
	e.Subject, e.Name = nullString(subject), nullString(name)
	e.PublishedAt = nullTime(published)
	return e, err
}

func (r *DashboardRepo) ListEmails(ctx context.Context, tenantID string, f dashboard.ListFilter) ([]domain.EmailStat, int, error) {
	return listPage(ctx, r.db, "mautic_emails", emailColumns, `tenant_id = $1`,
		"published_at DESC NULLS LAST, id", []interface{}{tenantID}, f, scanEmail)
}

const segmentColumns = `id, tenant_id, mautic_segment_id, name, description, is_published,
	is_global, contact_count, created_by, date_added, date_modified, created_at, updated_at`

func scanSegment(s rowScanner) (domain.Segment, error) {
	var sg domain.Segment
	var desc, createdBy sql.NullString
	var added, modified sql.NullTime
	err := s.Scan(&sg.ID, &sg.TenantID, &sg.RemoteID, &sg.Name, &desc, &sg.IsPublished,
		&sg.IsGlobal, &sg.ContactCount, &createdBy, &added, &modified, &sg.CreatedAt, &sg.UpdatedAt)
	sg.Description, sg.CreatedBy = nullString(desc), nullString(createdBy)
	sg.DateAdded, sg.DateModified = nullTime(added), nullTime(modified)
	return sg, err
}

func (r *DashboardRepo) ListSegments(ctx context.Context, tenantID string, f dashboard.ListFilter) ([]domain.Segment, int, error) {
	return listPage(ctx, r.db, "mautic_segments", segmentColumns, `tenant_id = $1`,
		"contact_count DESC, id", []interface{}{tenantID}, f, scanSegment)
}

// listPage counts the rows matching where, then reads one page of them. A
// zero limit binds NULL, which Postgres treats as no limit.
func listPage[T any](ctx context.Context, db *sql.DB, table, columns, where, order string,
	args []interface{}, f dashboard.ListFilter, scan func(rowScanner) (T, error)) ([]T, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, where), args...,
	).Scan(&total); err != nil {
		return nil, 0, mapError("count "+table, err)
	}

	var limit interface{}
	if f.Limit > 0 {
		limit = f.Limit
	}
	idx := len(args) + 1
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		columns, table, where, order, idx, idx+1)
	rows, err := db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, mapError("list "+table, err)
	}
	items, err := collectRows(rows, scan)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func collectRows[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
