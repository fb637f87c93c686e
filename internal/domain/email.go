package domain

import (
	"math"
	"time"
)

// EmailStat is the local snapshot of a Mautic email and its send statistics.
// OpenRate and ClickRate are computed at sync time and stored.
type EmailStat struct {
	ID           int64      `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	RemoteID     int64      `json:"mautic_email_id" db:"mautic_email_id"`
	Subject      *string    `json:"subject" db:"subject"`
	Name         *string    `json:"name" db:"name"`
	SentCount    int        `json:"sent_count" db:"sent_count"`
	ReadCount    int        `json:"read_count" db:"read_count"`
	ClickedCount int        `json:"clicked_count" db:"clicked_count"`
	FailedCount  int        `json:"failed_count" db:"failed_count"`
	OpenRate     float64    `json:"open_rate" db:"open_rate"`
	ClickRate    float64    `json:"click_rate" db:"click_rate"`
	PublishedAt  *time.Time `json:"published_at" db:"published_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Rate returns 100*n/sent rounded to two decimals, or 0 when nothing was sent.
func Rate(n, sent int) float64 {
	if sent <= 0 {
		return 0
	}
	return Round2(float64(n) / float64(sent) * 100)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeRates fills OpenRate and ClickRate from the counters.
func (e *EmailStat) ComputeRates() {
	e.OpenRate = Rate(e.ReadCount, e.SentCount)
	e.ClickRate = Rate(e.ClickedCount, e.SentCount)
}
