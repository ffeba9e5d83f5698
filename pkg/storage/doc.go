// Package storage provides the snapshot persistence layer for the
// authorization engines.
//
// # Overview
//
// Each engine keeps its full state in memory and rewrites it wholesale on
// every mutation. The Store interface abstracts where those snapshots
// live; documents are opaque JSON produced by the engines themselves.
//
// Three backends are provided:
//
//   - FilesystemStore: one JSON file per table under a root directory
//   - SQLiteStore: one row per table in a single-file database
//   - RedisStore: one key per table
//
// # Usage
//
//	store, err := storage.NewStore(storage.Config{
//		Type:           "filesystem",
//		FilesystemRoot: "/var/lib/warden",
//	})
//
// Snapshots are last-writer-wins with no versioning. Sharing one backend
// between multiple engine processes is not safe; the engines' locks are
// process-local.
package storage
