package mautic

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/mautic-sync/internal/domain"
)

// Mautic serializes loosely: numbers arrive as strings, booleans as 0/1,
// empty objects as []. The flex types below decode without failing and
// normalize to zero values.

type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = flexInt(v)
	}
	return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`)) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// flexString keeps text as-is and renders scalars (e.g. a numeric user id)
// as their literal. Empty and null become "".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	*f = ""
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case 'n', '{', '[':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

func (f flexString) ptr() *string {
	if f == "" {
		return nil
	}
	s := string(f)
	return &s
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// flexTime is nil when absent or unparseable.
type flexTime struct {
	t *time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	f.t = nil
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.t = &t
			return nil
		}
	}
	return nil
}

// object decodes into T unless the payload is an array (PHP's empty
// associative array), leaving the zero value.
type object[T any] struct {
	v T
}

func (o *object[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	return json.Unmarshal(b, &o.v)
}

// Contact is a contact record as returned by /api/contacts.
type Contact struct {
	ID         flexInt  `json:"id"`
	Points     flexInt  `json:"points"`
	LastActive flexTime `json:"lastActive"`
	Fields     object[struct {
		All object[contactFields] `json:"all"`
	}] `json:"fields"`
}

type contactFields struct {
	FirstName flexString `json:"firstname"`
	LastName  flexString `json:"lastname"`
	Email     flexString `json:"email"`
	Phone     flexString `json:"phone"`
	Company   flexString `json:"company"`
	City      flexString `json:"city"`
	Country   flexString `json:"country"`
}

// ToDomain maps the remote record to a local snapshot for tenantID.
func (c Contact) ToDomain(tenantID string) domain.Contact {
	f := c.Fields.v.All.v
	return domain.Contact{
		TenantID:   tenantID,
		RemoteID:   int64(c.ID),
		FirstName:  f.FirstName.ptr(),
		LastName:   f.LastName.ptr(),
		Email:      f.Email.ptr(),
		Phone:      f.Phone.ptr(),
		Company:    f.Company.ptr(),
		City:       f.City.ptr(),
		Country:    f.Country.ptr(),
		LastActive: c.LastActive.t,
		Points:     int(c.Points),
	}
}

// Campaign is a campaign record as returned by /api/campaigns.
type Campaign struct {
	ID          flexInt    `json:"id"`
	Name        flexString `json:"name"`
	Description flexString `json:"description"`
	IsPublished flexBool   `json:"isPublished"`
	Stats       object[struct {
		TotalContacts flexInt `json:"total_contacts"`
	}] `json:"stats"`
}

// ToDomain maps the remote record to a local snapshot for tenantID.
func (c Campaign) ToDomain(tenantID string) domain.Campaign {
	return domain.Campaign{
		TenantID:      tenantID,
		RemoteID:      int64(c.ID),
		Name:          string(c.Name),
		Description:   c.Description.ptr(),
		IsPublished:   bool(c.IsPublished),
		TotalContacts: int(c.Stats.v.TotalContacts),
	}
}

// Email is an email record as returned by /api/emails.
type Email struct {
	ID          flexInt    `json:"id"`
	Subject     flexString `json:"subject"`
	Name        flexString `json:"name"`
	SentCount   flexInt    `json:"sentCount"`
	ReadCount   flexInt    `json:"readCount"`
	ClickCount  flexInt    `json:"clickCount"`
	FailedCount flexInt    `json:"failedCount"`
	PublishUp   flexTime   `json:"publishUp"`
}

// ToDomain maps the remote record to a local snapshot for tenantID, with
// open and click rates computed.
func (e Email) ToDomain(tenantID string) domain.EmailStat {
	stat := domain.EmailStat{
		TenantID:     tenantID,
		RemoteID:     int64(e.ID),
		Subject:      e.Subject.ptr(),
		Name:         e.Name.ptr(),
		SentCount:    int(e.SentCount),
		ReadCount:    int(e.ReadCount),
		ClickedCount: int(e.ClickCount),
		FailedCount:  int(e.FailedCount),
		PublishedAt:  e.PublishUp.t,
	}
	stat.ComputeRates()
	return stat
}

// Segment is a segment record as returned by /api/segments (under "lists").
type Segment struct {
	ID           flexInt    `json:"id"`
	Name         flexString `json:"name"`
	Description  flexString `json:"description"`
	IsPublished  flexBool   `json:"isPublished"`
	IsGlobal     flexBool   `json:"isGlobal"`
	ContactCount flexInt    `json:"contactCount"`
	CreatedBy    flexString `json:"createdBy"`
	DateAdded    flexTime   `json:"dateAdded"`
	DateModified flexTime   `json:"dateModified"`
}

// ToDomain maps the remote record to a local snapshot for tenantID.
func (s Segment) ToDomain(tenantID string) domain.Segment {
	return domain.Segment{
		TenantID:     tenantID,
		RemoteID:     int64(s.ID),
		Name:         string(s.Name),
		Description:  s.Description.ptr(),
		IsPublished:  bool(s.IsPublished),
		IsGlobal:     bool(s.IsGlobal),
		ContactCount: int(s.ContactCount),
		CreatedBy:    s.CreatedBy.ptr(),
		DateAdded:    s.DateAdded.t,
		DateModified: s.DateModified.t,
	}
}
