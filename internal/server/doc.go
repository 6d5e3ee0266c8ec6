// Package server exposes the conversion service over HTTP: a convert
// endpoint that accepts a multipart upload and streams back the terminal
// artifact, plus formats and health endpoints for discovery and readiness.
package server
