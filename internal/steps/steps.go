package steps

import (
	"context"

	"montage/internal/config"
	"montage/internal/pipeline"
	"montage/internal/providers/speech"
	"montage/internal/providers/videointel"
)

// Annotator is the video intelligence surface the analysis steps need.
type Annotator interface {
	Annotate(ctx context.Context, req videointel.AnnotateRequest) (string, error)
	GetOperation(ctx context.Context, name string) (*videointel.Operation, error)
}

// Recognizer is the speech-to-text surface the transcription step needs.
type Recognizer interface {
	StartRecognition(ctx context.Context, req speech.RecognizeRequest) (string, error)
	GetOperation(ctx context.Context, name string) (*speech.Operation, error)
}

// metadataKeyOperation holds the in-flight operation handle a waiting step
// resumes from.
const metadataKeyOperation = "operation_name"

// Definitions returns the built-in step set. A nil client disables the steps
// that depend on it, which keeps a partially configured daemon useful.
func Definitions(cfg *config.Config, annotator Annotator, recognizer Recognizer) []pipeline.StepDefinition {
	defs := []pipeline.StepDefinition{newIngest()}
	if annotator != nil {
		defs = append(defs,
			newSceneAnalysis(annotator),
			newAudioAnalysis(annotator),
		)
	}
	if recognizer != nil {
		autoStart := cfg != nil && cfg.Pipeline.AutoTranscription
		defs = append(defs, newTranscription(recognizer, autoStart))
	}
	return defs
}

func operationHandle(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	handle, _ := metadata[metadataKeyOperation].(string)
	return handle
}
