package steps

import (
	"context"
	"fmt"
	"os"

	"montage/internal/library"
	"montage/internal/pipeline"
)

// newIngest builds the synchronous probe step. It runs first for every asset
// kind and records the basic facts later steps read.
func newIngest() pipeline.StepDefinition {
	return pipeline.StepDefinition{
		ID:          "ingest",
		Description: "Verify the stored file and record its basic properties.",
		AutoStart:   true,
		Run: func(_ context.Context, asset *library.Asset, _ *library.StepState, _ map[string]any) (pipeline.Result, error) {
			info, err := os.Stat(asset.StoragePath)
			if err != nil {
				return pipeline.Result{}, fmt.Errorf("stat stored file: %w", err)
			}
			if info.IsDir() {
				return pipeline.Result{}, fmt.Errorf("stored path %q is a directory", asset.StoragePath)
			}
			return pipeline.Result{
				Status: library.StepSucceeded,
				Metadata: map[string]any{
					"size_bytes":   info.Size(),
					"mime_type":    asset.MIMEType,
					"kind":         string(asset.Kind),
					"storage_path": asset.StoragePath,
				},
			}, nil
		},
	}
}
