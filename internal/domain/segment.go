package domain

import "time"

// Segment is the local snapshot of a Mautic segment (a "list" in the remote API).
type Segment struct {
	ID           int64      `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	RemoteID     int64      `json:"mautic_segment_id" db:"mautic_segment_id"`
	Name         string     `json:"name" db:"name"`
	Description  *string    `json:"description" db:"description"`
	IsPublished  bool       `json:"is_published" db:"is_published"`
	IsGlobal     bool       `json:"is_global" db:"is_global"`
	ContactCount int        `json:"contact_count" db:"contact_count"`
	CreatedBy    *string    `json:"created_by" db:"created_by"`
	DateAdded    *time.Time `json:"date_added" db:"date_added"`
	DateModified *time.Time `json:"date_modified" db:"date_modified"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
