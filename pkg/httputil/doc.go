// Package httputil provides shared HTTP plumbing for the API surface:
// JSON response writers, request parsing helpers, and middleware for
// logging, panic recovery, and request identification.
package httputil
