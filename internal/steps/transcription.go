package steps

import (
	"context"
	"strings"

	"montage/internal/library"
	"montage/internal/pipeline"
	"montage/internal/providers/speech"
	"montage/internal/services"
)

// newTranscription builds the speech-to-text step. Manual by default; the
// daemon config can promote it to auto-start.
func newTranscription(recognizer Recognizer, autoStart bool) pipeline.StepDefinition {
	return pipeline.StepDefinition{
		ID:          "transcription",
		Description: "Transcribe the audio track to text.",
		Kinds:       []library.Kind{library.KindVideo, library.KindAudio},
		AutoStart:   autoStart,
		Requires:    []string{"ingest"},
		Run: func(ctx context.Context, asset *library.Asset, state *library.StepState, params map[string]any) (pipeline.Result, error) {
			if state != nil {
				if handle := operationHandle(state.Metadata); handle != "" {
					return pollTranscription(ctx, recognizer, handle)
				}
			}

			language, _ := params["language"].(string)
			handle, err := recognizer.StartRecognition(ctx, speech.RecognizeRequest{
				AudioURI:     "file://" + asset.StoragePath,
				LanguageCode: language,
			})
			if err != nil {
				return pipeline.Result{}, services.Wrap(services.ErrProvider, "transcription", "recognize", "", err)
			}
			return pipeline.Result{
				Status:   library.StepWaiting,
				Metadata: map[string]any{metadataKeyOperation: handle},
			}, nil
		},
	}
}

func pollTranscription(ctx context.Context, recognizer Recognizer, handle string) (pipeline.Result, error) {
	op, err := recognizer.GetOperation(ctx, handle)
	if err != nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "transcription", "poll", "", err)
	}
	if !op.Done {
		waiting := map[string]any{metadataKeyOperation: handle}
		if op.Metadata != nil {
			waiting["progress_percent"] = op.Metadata.ProgressPercent
		}
		return pipeline.Result{Status: library.StepWaiting, Metadata: waiting}, nil
	}
	if op.Error != nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "transcription", "poll", op.Error.Message, nil)
	}
	if op.Response == nil {
		return pipeline.Result{}, services.Wrap(services.ErrProvider, "transcription", "poll", "operation completed without results", nil)
	}

	var parts []string
	wordCount := 0
	for _, result := range op.Response.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		best := result.Alternatives[0]
		if best.Transcript != "" {
			parts = append(parts, strings.TrimSpace(best.Transcript))
		}
		wordCount += len(best.Words)
	}
	transcript := strings.Join(parts, " ")
	if wordCount == 0 && transcript != "" {
		wordCount = len(strings.Fields(transcript))
	}

	return pipeline.Result{
		Status: library.StepSucceeded,
		Metadata: map[string]any{
			metadataKeyOperation: handle,
			"transcript":         transcript,
			"word_count":         wordCount,
		},
	}, nil
}
