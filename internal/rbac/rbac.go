// Package rbac evaluates admin permissions against a role's permission
// matrix. Lookups are exact: a resource/action pair is granted only when the
// matrix names it with a true value. "*" has no special meaning.
package rbac

import (
	"fmt"
	"strings"

	"github.com/agora-social/agora-admin/internal/model"
)

// Permission names one action on one resource.
type Permission struct {
	Resource string
	Action   string
}

// P is shorthand for Permission{resource, action}.
func P(resource, action string) Permission {
	return Permission{Resource: resource, Action: action}
}

// String renders the permission as "resource:action".
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// ParsePermission parses "resource:action".
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return Permission{}, fmt.Errorf("invalid permission %q: want resource:action", s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// HasPermission reports whether matrix grants action on resource. A nil
// matrix, a missing resource, a missing action, or an explicit false all deny.
func HasPermission(matrix model.PermissionMatrix, resource, action string) bool {
	actions, ok := matrix[resource]
	if !ok {
		return false
	}
	return actions[action]
}

// Missing returns the first required permission matrix does not grant. With
// no required permissions it always reports false.
func Missing(matrix model.PermissionMatrix, required ...Permission) (Permission, bool) {
	for _, p := range required {
		if !HasPermission(matrix, p.Resource, p.Action) {
			return p, true
		}
	}
	return Permission{}, false
}

// Grant returns a matrix granting exactly the given permissions.
func Grant(perms ...Permission) model.PermissionMatrix {
	m := model.PermissionMatrix{}
	for _, p := range perms {
		if m[p.Resource] == nil {
			m[p.Resource] = map[string]bool{}
		}
		m[p.Resource][p.Action] = true
	}
	return m
}

// Granted lists every permission the matrix grants, sorted.
func Granted(matrix model.PermissionMatrix) []Permission {
	var out []Permission
	for resource, actions := range matrix {
		for action, ok := range actions {
			if ok {
				out = append(out, Permission{Resource: resource, Action: action})
			}
		}
	}
	sortPermissions(out)
	return out
}
