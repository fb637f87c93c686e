package domain

import "time"

// Contact is the local snapshot of a Mautic contact.
type Contact struct {
	ID         int64      `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	RemoteID   int64      `json:"mautic_contact_id" db:"mautic_contact_id"`
	FirstName  *string    `json:"first_name" db:"first_name"`
	LastName   *string    `json:"last_name" db:"last_name"`
	Email      *string    `json:"email" db:"email"`
	Phone      *string    `json:"phone" db:"phone"`
	Company    *string    `json:"company" db:"company"`
	City       *string    `json:"city" db:"city"`
	Country    *string    `json:"country" db:"country"`
	LastActive *time.Time `json:"last_active" db:"last_active"`
	Points     int        `json:"points" db:"points"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
