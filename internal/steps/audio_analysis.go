package steps

import (
	"context"

	"montage/internal/library"
	"montage/internal/pipeline"
	"montage/internal/providers/videointel"
	"montage/internal/services"
)

// newAudioAnalysis builds the loudness and music detection step. Same
// start-then-poll shape as scene analysis, against the audio feature of the
// same provider.
func newAudioAnalysis(annotator Annotator) pipeline.StepDefinition {
	return pipeline.StepDefinition{
		ID:          "audio-analysis",
		Description: "Measure loudness and detect music in the audio track.",
		Kinds:       []library.Kind{library.KindVideo, library.KindAudio},
		AutoStart:   true,
		Requires:    []string{"ingest"},
		Run: func(ctx context.Context, asset *library.Asset, state *library.StepState, _ map[string]any) (pipeline.Result, error) {
			if state != nil {
				if handle := operationHandle(state.Metadata); handle != "" {
					return pollAudioAnalysis(ctx, annotator, handle)
				}
			}

			handle, err := annotator.Annotate(ctx, videointel.AnnotateRequest{
				InputURI: "file://" + asset.StoragePath,
				Features: []string{videointel.FeatureAudioAnalysis},
			})
			if err != nil {
				return pipeline.Result{}, services.Wrap(services.ErrProvider, "audio-analysis", "annotate", "", err)
			}
			return pipeline.Result{
				Status:   library.StepWaiting,
				Metadata: map[string]any{metadataKeyOperation: handle},
			}, nil
		},
	}
}

func pollAudioAnalysis(ctx context.Context, annotator Annotator, handle string) (pipeline.Result, error) {
	op, err := annotator.GetOperation(ctx, handle)
	if err != nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "audio-analysis", "poll", "", err)
	}
	if !op.Done {
		return pipeline.Result{
			Status:   library.StepWaiting,
			Metadata: map[string]any{metadataKeyOperation: handle},
		}, nil
	}
	if op.Error != nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "audio-analysis", "poll", op.Error.Message, nil)
	}
	if op.Response == nil || len(op.Response.AnnotationResults) == 0 || op.Response.AnnotationResults[0].AudioResult == nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "audio-analysis", "poll", "operation completed without audio results", nil)
	}

	audio := op.Response.AnnotationResults[0].AudioResult
	return pipeline.Result{
		Status: library.StepSucceeded,
		Metadata: map[string]any{
			metadataKeyOperation: handle,
			"loudness_lufs":      audio.LoudnessLUFS,
			"music_detected":     audio.MusicDetected,
			"speech_ratio":       audio.SpeechRatio,
		},
	}, nil
}
