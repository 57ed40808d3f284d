package steps

import (
	"context"

	"montage/internal/library"
	"montage/internal/pipeline"
	"montage/internal/providers/videointel"
	"montage/internal/services"
)

// newSceneAnalysis builds the shot and label detection step. The first run
// starts a provider operation and returns waiting with the operation handle;
// later runs poll that handle until it completes.
func newSceneAnalysis(annotator Annotator) pipeline.StepDefinition {
	return pipeline.StepDefinition{
		ID:          "scene-analysis",
		Description: "Detect shot boundaries and content labels.",
		Kinds:       []library.Kind{library.KindVideo},
		AutoStart:   true,
		Requires:    []string{"ingest"},
		Run: func(ctx context.Context, asset *library.Asset, state *library.StepState, _ map[string]any) (pipeline.Result, error) {
			if state != nil {
				if handle := operationHandle(state.Metadata); handle != "" {
					return pollSceneAnalysis(ctx, annotator, handle)
				}
			}

			handle, err := annotator.Annotate(ctx, videointel.AnnotateRequest{
				InputURI: "file://" + asset.StoragePath,
				Features: []string{
					videointel.FeatureShotChangeDetection,
					videointel.FeatureLabelDetection,
				},
			})
			if err != nil {
				return pipeline.Result{}, services.Wrap(services.ErrProvider, "scene-analysis", "annotate", "", err)
			}
			return pipeline.Result{
				Status:   library.StepWaiting,
				Metadata: map[string]any{metadataKeyOperation: handle},
			}, nil
		},
	}
}

func pollSceneAnalysis(ctx context.Context, annotator Annotator, handle string) (pipeline.Result, error) {
	op, err := annotator.GetOperation(ctx, handle)
	if err != nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "scene-analysis", "poll", "", err)
	}
	if !op.Done {
		waiting := map[string]any{metadataKeyOperation: handle}
		if op.Metadata != nil {
			waiting["progress_percent"] = op.Metadata.ProgressPercent
		}
		return pipeline.Result{Status: library.StepWaiting, Metadata: waiting}, nil
	}
	if op.Error != nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "scene-analysis", "poll", op.Error.Message, nil)
	}
	if op.Response == nil || len(op.Response.AnnotationResults) == 0 {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "scene-analysis", "poll", "operation completed without results", nil)
	}

	result := op.Response.AnnotationResults[0]
	shots := make([]map[string]any, 0, len(result.ShotAnnotations))
	for _, shot := range result.ShotAnnotations {
		shots = append(shots, map[string]any{
			"start": shot.StartOffset,
			"end":   shot.EndOffset,
		})
	}
	labels := make([]string, 0, len(result.SegmentLabelAnnotations))
	for _, label := range result.SegmentLabelAnnotations {
		labels = append(labels, label.Entity.Description)
	}

	final := map[string]any{
		metadataKeyOperation: handle,
		"shot_count":         len(result.ShotAnnotations),
		"label_count":        len(result.SegmentLabelAnnotations),
		"shots":              shots,
		"labels":             labels,
	}
	return pipeline.Result{Status: library.StepSucceeded, Metadata: final}, nil
}
