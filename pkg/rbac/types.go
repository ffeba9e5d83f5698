package rbac

// Role represents a built-in role in the system
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"

	// Agent roles
	RoleAgent       Role = "agent"
	RoleExpertAgent Role = "expert_agent"
	RoleTriageAgent Role = "triage_agent"
)

// String returns the role name
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a role name to a Role; ok is false for unknown names
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAnonymous, RoleUser, RoleDeveloper, RoleAdmin, RoleSystem,
		RoleAgent, RoleExpertAgent, RoleTriageAgent:
		return Role(s), true
	}
	return "", false
}

// Well-known permission strings, namespace.action
const (
	PermissionAPIRead  = "api.read"
	PermissionAPIWrite = "api.write"
	PermissionAPIAdmin = "api.admin"

	PermissionUserRead  = "user.read"
	PermissionUserWrite = "user.write"
	PermissionUserAdmin = "user.admin"

	PermissionAgentRead    = "agent.read"
	PermissionAgentWrite   = "agent.write"
	PermissionAgentAdmin   = "agent.admin"
	PermissionAgentExecute = "agent.execute"

	PermissionSystemRead  = "system.read"
	PermissionSystemWrite = "system.write"
	PermissionSystemAdmin = "system.admin"
)

// rolePermissions is the static role catalog
var rolePermissions = map[Role][]string{
	RoleAnonymous: {},
	RoleUser: {
		PermissionAPIRead,
		PermissionAgentRead,
		PermissionAgentExecute,
	},
	RoleDeveloper: {
		PermissionAPIRead,
		PermissionAPIWrite,
		PermissionAgentRead,
		PermissionAgentWrite,
		PermissionAgentExecute,
	},
	RoleAdmin: {
		PermissionAPIRead,
		PermissionAPIWrite,
		PermissionAPIAdmin,
		PermissionUserRead,
		PermissionUserWrite,
		PermissionUserAdmin,
		PermissionAgentRead,
		PermissionAgentWrite,
		PermissionAgentAdmin,
		PermissionAgentExecute,
		PermissionSystemRead,
		PermissionSystemWrite,
	},
	RoleSystem: {
		PermissionAPIRead,
		PermissionAPIWrite,
		PermissionAPIAdmin,
		PermissionUserRead,
		PermissionUserWrite,
		PermissionUserAdmin,
		PermissionAgentRead,
		PermissionAgentWrite,
		PermissionAgentAdmin,
		PermissionAgentExecute,
		PermissionSystemRead,
		PermissionSystemWrite,
		PermissionSystemAdmin,
	},
	RoleAgent: {
		PermissionAPIRead,
		PermissionAgentRead,
		PermissionAgentExecute,
	},
	RoleExpertAgent: {
		PermissionAPIRead,
		PermissionAgentRead,
		PermissionAgentExecute,
	},
	RoleTriageAgent: {
		PermissionAPIRead,
		PermissionAgentRead,
		PermissionAgentExecute,
	},
}

// DefaultPermissions returns the static permission set for a role. The
// returned slice is a copy; callers may mutate it freely.
func DefaultPermissions(role Role) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// RolesPermissions returns the deduplicated union of default permissions
// for a list of role names. Unknown role names are skipped.
func RolesPermissions(roles []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range roles {
		role, ok := ParseRole(name)
		if !ok {
			continue
		}
		for _, perm := range rolePermissions[role] {
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	return out
}

// HasRole reports whether required is among the user's role names
func HasRole(required Role, userRoles []string) bool {
	for _, name := range userRoles {
		if name == string(required) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether any of the required roles is present
func HasAnyRole(required []Role, userRoles []string) bool {
	for _, role := range required {
		if HasRole(role, userRoles) {
			return true
		}
	}
	return false
}
