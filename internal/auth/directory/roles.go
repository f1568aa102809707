package directory

import "strings"

const (
	rolePrefix    = "ROLE_"
	appRolePrefix = "APP_"
)

// NormalizeRoles maps raw directory group or role names onto the canonical
// ROLE_* form. APP_* names are application roles and get rewritten to
// ROLE_*; names already carrying ROLE_ pass through; everything else is a
// plain directory group and is dropped. Order is preserved, duplicates are
// removed.
func NormalizeRoles(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	roles := make([]string, 0, len(raw))

	for _, name := range raw {
		name = strings.TrimSpace(name)

		var role string
		switch {
		case strings.HasPrefix(name, rolePrefix):
			role = name
		case strings.HasPrefix(name, appRolePrefix):
			role = rolePrefix + strings.TrimPrefix(name, appRolePrefix)
		default:
			continue
		}

		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	if len(roles) == 0 {
		return nil
	}
	return roles
}
