// Package services defines shared utilities consumed by pipeline steps and
// provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp asset IDs, step names, job IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the pipeline's error taxonomy (precondition, provider,
//     result-fetch, validation).
//
// Use these helpers when wiring new step or provider logic so error handling
// and observability stay uniform across the pipeline.
package services
