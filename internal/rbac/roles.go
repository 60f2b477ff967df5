package rbac

import (
	"cmp"
	"slices"

	"github.com/agora-social/agora-admin/internal/model"
)

// Permissions checked by the admin API itself.
var (
	PermAdminManage = P("admin_management", "manage")
	PermAuditView   = P("audit_logs", "view")
)

// RoleTemplate is a built-in role definition used for seeding.
type RoleTemplate struct {
	Name        string
	Description string
	Permissions model.PermissionMatrix
}

// DefaultRoles returns the roles seeded into an empty store.
func DefaultRoles() []RoleTemplate {
	return []RoleTemplate{
		{
			Name:        "super_admin",
			Description: "Full access to every admin resource",
			Permissions: Grant(
				P("users", "view"), P("users", "edit"), P("users", "suspend"), P("users", "delete"),
				P("reports", "view"), P("reports", "resolve"),
				P("content", "view"), P("content", "moderate"), P("content", "delete"),
				P("system_settings", "view"), P("system_settings", "edit"),
				PermAdminManage,
				PermAuditView,
			),
		},
		{
			Name:        "moderator",
			Description: "Reviews reports and moderates content",
			Permissions: Grant(
				P("reports", "view"),
				P("content", "view"), P("content", "moderate"),
			),
		},
		{
			Name:        "support",
			Description: "Read-only access to user accounts",
			Permissions: Grant(P("users", "view")),
		},
	}
}

func sortPermissions(perms []Permission) {
	slices.SortFunc(perms, func(a, b Permission) int {
		return cmp.Or(cmp.Compare(a.Resource, b.Resource), cmp.Compare(a.Action, b.Action))
	})
}
