package model

import "time"

// PermissionMatrix maps a resource name to the actions allowed on it.
// Any resource/action pair not present is denied.
type PermissionMatrix map[string]map[string]bool

// AdminRole is a shared permission template. Admins reference roles by ID, so
// changing a role changes what every admin holding it can do.
type AdminRole struct {
	ID          int64            `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	Description string           `json:"description" db:"description"`
	Permissions PermissionMatrix `json:"permissions" db:"-"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
