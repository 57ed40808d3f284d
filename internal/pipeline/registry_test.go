package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"montage/internal/library"
	"montage/internal/pipeline"
)

func noopRun(context.Context, *library.Asset, *library.StepState, map[string]any) (pipeline.Result, error) {
	return pipeline.Result{Status: library.StepSucceeded}, nil
}

func TestNewRegistryRejectsDuplicateIDs(t *testing.T) {
	_, err := pipeline.NewRegistry(
		pipeline.StepDefinition{ID: "ingest", Run: noopRun},
		pipeline.StepDefinition{ID: "ingest", Run: noopRun},
	)
	if err == nil || !strings.Contains(err.Error(), "duplicate step id") {
		t.Fatalf("err = %v, want duplicate id error", err)
	}
}

func TestNewRegistryRejectsUnknownPrerequisite(t *testing.T) {
	_, err := pipeline.NewRegistry(
		pipeline.StepDefinition{ID: "scene-analysis", Requires: []string{"ingest"}, Run: noopRun},
	)
	if err == nil || !strings.Contains(err.Error(), "unknown step") {
		t.Fatalf("err = %v, want unknown prerequisite error", err)
	}
}

func TestNewRegistryDerivesLabels(t *testing.T) {
	registry, err := pipeline.NewRegistry(
		pipeline.StepDefinition{ID: "scene-analysis", Run: noopRun},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	def, ok := registry.Lookup("scene-analysis")
	if !ok {
		t.Fatal("lookup failed")
	}
	if def.Label != "Scene Analysis" {
		t.Fatalf("label = %q, want %q", def.Label, "Scene Analysis")
	}
}

func TestForKindFiltersDefinitions(t *testing.T) {
	registry, err := pipeline.NewRegistry(
		pipeline.StepDefinition{ID: "ingest", Run: noopRun},
		pipeline.StepDefinition{ID: "scene-analysis", Kinds: []library.Kind{library.KindVideo}, Run: noopRun},
		pipeline.StepDefinition{ID: "transcription", Kinds: []library.Kind{library.KindVideo, library.KindAudio}, Run: noopRun},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	audio := registry.ForKind(library.KindAudio)
	if len(audio) != 2 {
		t.Fatalf("audio steps = %d, want 2", len(audio))
	}
	image := registry.ForKind(library.KindImage)
	if len(image) != 1 || image[0].ID != "ingest" {
		t.Fatalf("image steps = %+v, want only ingest", image)
	}
}
