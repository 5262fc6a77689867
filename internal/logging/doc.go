// Package logging assembles structured slog loggers and formatting helpers
// used across drover components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and defines the standardized attribute keys (component, target,
// conversation, generation) so scheduler, pool, and daemon logs stay queryable
// with one vocabulary. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape as the rest of the system.
package logging
