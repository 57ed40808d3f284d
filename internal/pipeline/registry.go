package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"montage/internal/library"
)

// Result is the outcome of one step invocation. Waiting means an external
// operation was started or is still in flight; Metadata carries enough state
// for a later invocation to resume it.
type Result struct {
	Status   library.StepStatus
	Metadata map[string]any
}

// RunFunc executes one step against one asset. state is the persisted step
// row from a previous invocation, or nil on first run.
type RunFunc func(ctx context.Context, asset *library.Asset, state *library.StepState, params map[string]any) (Result, error)

// StepDefinition describes one pipeline step.
type StepDefinition struct {
	ID          string
	Label       string
	Description string
	Kinds       []library.Kind
	AutoStart   bool
	Requires    []string
	Run         RunFunc
}

// AppliesTo reports whether the step handles assets of the given kind.
func (d StepDefinition) AppliesTo(kind library.Kind) bool {
	if len(d.Kinds) == 0 {
		return true
	}
	for _, k := range d.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Registry is an immutable catalog of step definitions.
type Registry struct {
	steps []StepDefinition
	index map[string]int
}

var titleCaser = cases.Title(language.English)

// NewRegistry validates the definitions and returns a catalog. Duplicate ids
// and prerequisite references to unknown steps are rejected.
func NewRegistry(defs ...StepDefinition) (*Registry, error) {
	registry := &Registry{
		steps: make([]StepDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		id := strings.TrimSpace(def.ID)
		if id == "" {
			return nil, fmt.Errorf("step definition missing id")
		}
		if _, exists := registry.index[id]; exists {
			return nil, fmt.Errorf("duplicate step id %q", id)
		}
		if def.Run == nil {
			return nil, fmt.Errorf("step %q has no run function", id)
		}
		def.ID = id
		if def.Label == "" {
			def.Label = titleCaser.String(strings.ReplaceAll(id, "-", " "))
		}
		registry.index[id] = len(registry.steps)
		registry.steps = append(registry.steps, def)
	}
	for _, def := range registry.steps {
		for _, req := range def.Requires {
			if _, ok := registry.index[req]; !ok {
				return nil, fmt.Errorf("step %q requires unknown step %q", def.ID, req)
			}
		}
	}
	return registry, nil
}

// Steps returns the definitions in registration order.
func (r *Registry) Steps() []StepDefinition {
	out := make([]StepDefinition, len(r.steps))
	copy(out, r.steps)
	return out
}

// Lookup returns the definition for a step id.
func (r *Registry) Lookup(id string) (StepDefinition, bool) {
	idx, ok := r.index[id]
	if !ok {
		return StepDefinition{}, false
	}
	return r.steps[idx], true
}

// ForKind returns the definitions applicable to the given asset kind, in
// registration order.
func (r *Registry) ForKind(kind library.Kind) []StepDefinition {
	var out []StepDefinition
	for _, def := range r.steps {
		if def.AppliesTo(kind) {
			out = append(out, def)
		}
	}
	return out
}
