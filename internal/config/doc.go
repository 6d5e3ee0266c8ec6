// Package config loads and validates TOML configuration for the conversion
// service: scratch directories, engine binaries and timeouts, request limits,
// and log output settings.
package config
