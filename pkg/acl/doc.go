// Package acl implements the resource-scoped access control engine.
//
// Each registered resource has one Entry recording its owner, default
// level, per-user and per-team grants, and public-access policy. The
// effective level for a user resolves in order: owner, explicit user
// grant, the best matching team grant, the public level, then the
// entry's default. Resources with no entry resolve to none.
//
// The engine holds its full table in memory behind one RWMutex and
// rewrites the table to the snapshot store on every mutation.
package acl
