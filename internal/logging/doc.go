// Package logging builds the service's slog loggers and carries stage and
// request correlation attributes through context.
package logging
