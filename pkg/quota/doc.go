// Package quota meters per-user consumption of typed resources against
// period-based limits.
//
// A Config sets the limit and reset cadence (day, month, year, or
// infinite) for a resource type; a Usage record counts one user's
// consumption within the current period. Period rollover is calendar
// based and is detected lazily at every read and write, so a stale
// record resets itself the next time anyone looks at it. A periodic
// sweep also resets rolled-over records and writes the full snapshot,
// which is why usage increments do not write through per call.
//
// Checking a resource type with no configuration is allowed rather than
// denied, with a warning. Usage never goes below zero.
package quota
