package model

import (
	"encoding/json"
	"time"
)

// AuditCategory is the closed set of categories an audit entry can belong to.
type AuditCategory string

const (
	CategoryAuth              AuditCategory = "auth"
	CategoryUserManagement    AuditCategory = "user_management"
	CategoryReportManagement  AuditCategory = "report_management"
	CategoryContentModeration AuditCategory = "content_moderation"
	CategorySystemSettings    AuditCategory = "system_settings"
	CategoryAdminManagement   AuditCategory = "admin_management"
)

// AuditCategories lists every valid category.
var AuditCategories = []AuditCategory{
	CategoryAuth,
	CategoryUserManagement,
	CategoryReportManagement,
	CategoryContentModeration,
	CategorySystemSettings,
	CategoryAdminManagement,
}

// Valid reports whether c is one of the enumerated categories.
func (c AuditCategory) Valid() bool {
	for _, known := range AuditCategories {
		if c == known {
			return true
		}
	}
	return false
}

// AuditLogEntry is an immutable security event. Entries are only ever
// appended; nothing in the system updates or deletes them.
type AuditLogEntry struct {
	ID         string          `json:"id" db:"id"`
	AdminID    *int64          `json:"admin_id,omitempty" db:"admin_id"` // nil for unknown or failed lookups
	ActorEmail string          `json:"actor_email,omitempty" db:"actor_email"`
	Category   AuditCategory   `json:"category" db:"category"`
	ActionType string          `json:"action_type" db:"action_type"`
	TargetType string          `json:"target_type,omitempty" db:"target_type"`
	TargetID   string          `json:"target_id,omitempty" db:"target_id"`
	Details    json.RawMessage `json:"details,omitempty" db:"-"`
	Reason     string          `json:"reason,omitempty" db:"reason"`
	IPAddress  string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  string          `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// AuditFilter narrows a read of the audit ledger. Zero values mean "any".
type AuditFilter struct {
	Category AuditCategory
	AdminID  *int64
	Since    *time.Time
	Limit    int
}
