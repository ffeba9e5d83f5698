package rbac

import "strings"

// Matches reports whether the required permission is satisfied by the
// granted set. A permission is satisfied by an exact match, by a
// namespace wildcard ("api.*" satisfies "api.read"), or by the namespace
// admin permission ("api.admin" satisfies "api.read"). A required
// permission that is not exactly two dot-separated parts never matches.
//
// Every permission-subset decision in the system goes through this rule:
// role defaults, delegation grants, and plan base permissions all use the
// same wildcard dialect.
func Matches(required string, granted []string) bool {
	if required == "" || len(granted) == 0 {
		return false
	}

	parts := strings.Split(required, ".")
	if len(parts) != 2 {
		return false
	}

	wildcard := parts[0] + ".*"
	admin := parts[0] + ".admin"

	for _, perm := range granted {
		if perm == required || perm == wildcard || perm == admin {
			return true
		}
	}
	return false
}

// MatchesAny reports whether any required permission is satisfied
func MatchesAny(required []string, granted []string) bool {
	for _, perm := range required {
		if Matches(perm, granted) {
			return true
		}
	}
	return false
}

// MatchesAll reports whether every required permission is satisfied
func MatchesAll(required []string, granted []string) bool {
	for _, perm := range required {
		if !Matches(perm, granted) {
			return false
		}
	}
	return true
}
