// Package config loads application configuration from environment
// variables, optionally layered over a YAML file.
//
// Precedence, lowest to highest: built-in defaults, file values,
// WARDEN_* environment variables. Validation runs after all layers are
// applied.
package config
