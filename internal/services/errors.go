package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPrecondition marks a step invoked before a required sibling step
	// produced its output. Surfaced synchronously to the caller; never
	// persisted as step state.
	ErrPrecondition = errors.New("precondition not met")
	// ErrProvider marks a terminal failure reported by an external provider.
	// Recorded verbatim and never auto-retried.
	ErrProvider = errors.New("provider error")
	// ErrResultFetch marks a provider success whose result download or decode
	// failed. Worded distinctly from ErrProvider so operators can tell whether
	// resubmission is likely to help.
	ErrResultFetch = errors.New("result download failed")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrProvider
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Precondition returns an ErrPrecondition naming the step whose output is
// missing.
func Precondition(stepID string) error {
	return fmt.Errorf("%w: requires step %q to succeed first", ErrPrecondition, stepID)
}

// ErrorDetails carries the classification and user-facing message of a
// pipeline or job failure.
type ErrorDetails struct {
	Marker  error
	Message string
}

// Details classifies err against the sentinel markers and extracts a message
// suitable for persisting into step or job state.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	for _, marker := range []error{
		ErrPrecondition,
		ErrResultFetch,
		ErrProvider,
		ErrValidation,
		ErrNotFound,
		ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			details.Marker = marker
			break
		}
	}
	return details
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
