// Package api exposes the authorization engines over HTTP. Handlers
// parse external input at the boundary (resource types, access levels,
// quota periods) and delegate to the engines, so invalid names are
// rejected with 400 before any engine call.
package api
