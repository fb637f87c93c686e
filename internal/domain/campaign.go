package domain

import "time"

// Campaign is the local snapshot of a Mautic campaign.
type Campaign struct {
	ID            int64     `json:"id" db:"id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	RemoteID      int64     `json:"mautic_campaign_id" db:"mautic_campaign_id"`
	Name          string    `json:"name" db:"name"`
	Description   *string   `json:"description" db:"description"`
	IsPublished   bool      `json:"is_published" db:"is_published"`
	TotalContacts int       `json:"total_contacts" db:"total_contacts"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
