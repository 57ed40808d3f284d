// Package logging builds the slog loggers used across Montage.
//
// It provides console and JSON handlers, standardized field keys for asset,
// step, and job identifiers, helpers that lift context annotations into log
// fields, and a no-op logger for tests.
package logging
