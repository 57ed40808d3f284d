// Package daemon runs the montage background process: a bearer-authenticated
// HTTP API over the library, pipeline, and job adapter, plus an inbox watcher
// that registers dropped files as assets. A file lock enforces a single
// instance per machine.
package daemon
