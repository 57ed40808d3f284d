// Package steps holds the built-in pipeline step definitions: a synchronous
// ingest probe plus the provider-backed analysis steps. Analysis steps store
// their in-flight operation handle in step metadata and resume from it on
// re-entry, so running a step twice never starts a second provider operation.
package steps
