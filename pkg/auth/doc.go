// Package auth defines the authenticated Subject consumed by the policy
// engines and the collaborator interfaces that supply one.
//
// Credential verification (API keys, JWTs, OAuth) is not performed
// here; an IdentityProvider hands the core an already-authenticated
// subject with its roles and claimed permissions, and a TeamDirectory
// supplies team memberships for ACL resolution. Static in-memory
// implementations of both are provided for tests and fixed-tenant
// deployments.
package auth
