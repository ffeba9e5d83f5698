// Package delegation lets a platform grant a bounded subset of its own
// permissions to its end users.
//
// Rules are platform-scoped templates declaring what may be delegated
// ("*" meaning everything), whether grants need manual approval, and a
// stored (unenforced) re-delegation depth cap. Grants award concrete
// permission lists to one user, optionally time-boxed, and stay inactive
// until approved when their rule demands it.
//
// Permission-subset validation at grant time and effective-permission
// checks both use the rbac matching rule, so the wildcard dialect is the
// same everywhere. Effective permission unions are memoized in an LRU
// cache invalidated on every mutation and on grant expiry.
package delegation
