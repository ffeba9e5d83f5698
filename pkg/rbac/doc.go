// Package rbac provides the static role catalog and the permission
// matching primitive shared by every policy engine.
//
// # Roles
//
// Roles are a fixed enumeration (anonymous, user, developer, admin,
// system, plus the agent roles). Each maps to a static default
// permission set:
//
//	perms := rbac.DefaultPermissions(rbac.RoleUser)
//	// ["api.read", "agent.read", "agent.execute"]
//
// # Permission Matching
//
// Permissions are namespace.action strings. Matches implements the one
// wildcard dialect used everywhere:
//
//	rbac.Matches("api.read", []string{"api.*"})     // true
//	rbac.Matches("api.read", []string{"api.admin"}) // true
//	rbac.Matches("api.read", []string{"user.read"}) // false
//
// A required permission that does not split into exactly two dot parts
// never matches.
package rbac
