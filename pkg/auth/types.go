package auth

import (
	"sort"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// Subject is an authenticated actor: a user, a service account, or a
// delegated third-party user. Credential verification happens outside
// this module; a Subject arrives already authenticated, carrying the
// roles and permissions its credentials claimed.
type Subject struct {
	ID          string            `json:"subject_id"`
	Roles       []rbac.Role       `json:"roles,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	AuthType    string            `json:"auth_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasRole reports whether the subject carries the role.
func (s *Subject) HasRole(role rbac.Role) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ClaimedPermission reports literal membership in the subject's claimed
// permission list. Wildcard matching is the caller's concern.
func (s *Subject) ClaimedPermission(permission string) bool {
	for _, p := range s.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// EffectivePermissions is the union of the subject's claimed permissions
// and the default permissions of its roles, sorted.
func (s *Subject) EffectivePermissions() []string {
	seen := make(map[string]struct{}, len(s.Permissions))
	for _, p := range s.Permissions {
		seen[p] = struct{}{}
	}
	for _, role := range s.Roles {
		for _, p := range rbac.DefaultPermissions(role) {
			seen[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
