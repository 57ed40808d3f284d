// Package library persists assets, per-asset pipeline step state, and
// provider jobs in a local SQLite database. Step and job updates go through
// partial-merge patches so independent writers never overwrite each other's
// fields.
package library
