package operations

import (
	"context"

	"montage/internal/library"
)

// State is the adapter-internal view of a provider-side operation.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Status is one provider poll observation. Output carries whatever the
// provider returned on success and is handed back to Fetch untouched.
type Status struct {
	State    State
	Progress float64
	Message  string
	Output   map[string]any
}

// Provider abstracts one external generation or effect service behind the
// start/poll/fetch contract the adapter drives.
type Provider interface {
	// Kind identifies which job family this provider serves.
	Kind() library.JobKind
	// Validate rejects malformed params before any provider call is made.
	Validate(params map[string]any) error
	// Start issues the provider's asynchronous create call and returns its
	// opaque handle (an operation name or a prediction id).
	Start(ctx context.Context, params map[string]any) (string, error)
	// Poll queries the provider's status endpoint for the given handle.
	Poll(ctx context.Context, handle string) (Status, error)
	// Fetch downloads the result payload described by a succeeded poll.
	Fetch(ctx context.Context, output map[string]any) (data []byte, mimeType string, err error)
}
