// Package operations drives provider-side long-running jobs through a single
// start/poll/materialize contract. Every generative integration plugs in as a
// Provider; the Adapter owns job persistence, dedupe of identical in-flight
// submissions, terminal-state immutability, and turning a successful result
// into a new library asset that re-enters the pipeline.
package operations
