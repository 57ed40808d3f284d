package steps_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/pipeline"
	"montage/internal/providers/speech"
	"montage/internal/providers/videointel"
	"montage/internal/services"
	"montage/internal/steps"
	"montage/internal/testsupport"
)

type fakeAnnotator struct {
	annotateCalls int
	operation     *videointel.Operation
	annotateErr   error
	pollErr       error
	lastFeatures  []string
}

func (f *fakeAnnotator) Annotate(_ context.Context, req videointel.AnnotateRequest) (string, error) {
	f.annotateCalls++
	f.lastFeatures = req.Features
	if f.annotateErr != nil {
		return "", f.annotateErr
	}
	return "operations/op-1", nil
}

func (f *fakeAnnotator) GetOperation(context.Context, string) (*videointel.Operation, error) {
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return f.operation, nil
}

type fakeRecognizer struct {
	startCalls int
	operation  *speech.Operation
	startErr   error
}

func (f *fakeRecognizer) StartRecognition(context.Context, speech.RecognizeRequest) (string, error) {
	f.startCalls++
	if f.startErr != nil {
		return "", f.startErr
	}
	return "operations/speech-1", nil
}

func (f *fakeRecognizer) GetOperation(context.Context, string) (*speech.Operation, error) {
	return f.operation, nil
}

func newStepsRunner(t *testing.T, store *library.Store, annotator steps.Annotator, recognizer steps.Recognizer) *pipeline.Runner {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	registry, err := pipeline.NewRegistry(steps.Definitions(cfg, annotator, recognizer)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return pipeline.NewRunner(registry, store, logging.NewNop())
}

func TestIngestRecordsFileFacts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")
	runner := newStepsRunner(t, store, nil, nil)

	state, err := runner.RunStep(context.Background(), asset.ID, "ingest", nil)
	if err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	if state.Status != library.StepSucceeded {
		t.Fatalf("status = %q", state.Status)
	}
	if state.Metadata["mime_type"] != "video/mp4" {
		t.Fatalf("metadata = %v", state.Metadata)
	}
	if state.Metadata["storage_path"] != asset.StoragePath {
		t.Fatalf("storage_path = %v", state.Metadata["storage_path"])
	}
}

func TestSceneAnalysisStartsThenPollsToCompletion(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")
	annotator := &fakeAnnotator{
		operation: &videointel.Operation{Name: "operations/op-1", Done: false},
	}
	runner := newStepsRunner(t, store, annotator, nil)
	ctx := context.Background()

	if _, err := runner.RunStep(ctx, asset.ID, "ingest", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	first, err := runner.RunStep(ctx, asset.ID, "scene-analysis", nil)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Status != library.StepWaiting {
		t.Fatalf("first status = %q", first.Status)
	}
	if first.Metadata["operation_name"] != "operations/op-1" {
		t.Fatalf("metadata = %v", first.Metadata)
	}

	// Still running on the provider side: stays waiting, no second create.
	second, err := runner.RunStep(ctx, asset.ID, "scene-analysis", nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Status != library.StepWaiting {
		t.Fatalf("second status = %q", second.Status)
	}
	if annotator.annotateCalls != 1 {
		t.Fatalf("annotate calls = %d, want 1", annotator.annotateCalls)
	}

	annotator.operation = &videointel.Operation{
		Name: "operations/op-1",
		Done: true,
		Response: &videointel.AnnotateResponse{
			AnnotationResults: []videointel.AnnotationResult{{
				ShotAnnotations: []videointel.Segment{
					{StartOffset: "0s", EndOffset: "3s"},
					{StartOffset: "3s", EndOffset: "8s"},
				},
			}},
		},
	}
	final, err := runner.RunStep(ctx, asset.ID, "scene-analysis", nil)
	if err != nil {
		t.Fatalf("final run: %v", err)
	}
	if final.Status != library.StepSucceeded {
		t.Fatalf("final status = %q", final.Status)
	}
	if count, ok := final.Metadata["shot_count"].(float64); !ok || count != 2 {
		t.Fatalf("shot_count = %v", final.Metadata["shot_count"])
	}
	if annotator.annotateCalls != 1 {
		t.Fatalf("annotate calls = %d after completion, want 1", annotator.annotateCalls)
	}
}

func TestSceneAnalysisRecordsProviderFailure(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")
	annotator := &fakeAnnotator{
		operation: &videointel.Operation{
			Name:  "operations/op-1",
			Done:  true,
			Error: &videointel.OperationError{Code: 3, Message: "unsupported codec"},
		},
	}
	runner := newStepsRunner(t, store, annotator, nil)
	ctx := context.Background()

	if _, err := runner.RunStep(ctx, asset.ID, "ingest", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := runner.RunStep(ctx, asset.ID, "scene-analysis", nil); err != nil {
		t.Fatalf("start run: %v", err)
	}

	state, err := runner.RunStep(ctx, asset.ID, "scene-analysis", nil)
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("err = %v, want provider error", err)
	}
	if state.Status != library.StepFailed {
		t.Fatalf("status = %q", state.Status)
	}
	if !strings.Contains(state.ErrorMessage, "unsupported codec") {
		t.Fatalf("error message = %q", state.ErrorMessage)
	}
}

func TestAudioAnalysisUsesAudioFeatureAndRecordsLoudness(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")
	annotator := &fakeAnnotator{}
	runner := newStepsRunner(t, store, annotator, nil)
	ctx := context.Background()

	if _, err := runner.RunStep(ctx, asset.ID, "ingest", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := runner.RunStep(ctx, asset.ID, "audio-analysis", nil); err != nil {
		t.Fatalf("start run: %v", err)
	}
	if len(annotator.lastFeatures) != 1 || annotator.lastFeatures[0] != videointel.FeatureAudioAnalysis {
		t.Fatalf("features = %v", annotator.lastFeatures)
	}

	annotator.operation = &videointel.Operation{
		Name: "operations/op-1",
		Done: true,
		Response: &videointel.AnnotateResponse{
			AnnotationResults: []videointel.AnnotationResult{{
				AudioResult: &videointel.AudioResult{LoudnessLUFS: -14.2, MusicDetected: true},
			}},
		},
	}
	state, err := runner.RunStep(ctx, asset.ID, "audio-analysis", nil)
	if err != nil {
		t.Fatalf("poll run: %v", err)
	}
	if state.Status != library.StepSucceeded {
		t.Fatalf("status = %q", state.Status)
	}
	if detected, ok := state.Metadata["music_detected"].(bool); !ok || !detected {
		t.Fatalf("music_detected = %v", state.Metadata["music_detected"])
	}
}

func TestTranscriptionJoinsResultsAndCountsWords(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")
	recognizer := &fakeRecognizer{}
	runner := newStepsRunner(t, store, nil, recognizer)
	ctx := context.Background()

	if _, err := runner.RunStep(ctx, asset.ID, "ingest", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := runner.RunStep(ctx, asset.ID, "transcription", nil); err != nil {
		t.Fatalf("start run: %v", err)
	}

	recognizer.operation = &speech.Operation{
		Name: "operations/speech-1",
		Done: true,
		Response: &speech.RecognizeResponse{
			Results: []speech.RecognitionResult{
				{Alternatives: []speech.Alternative{{
					Transcript: "hello world",
					Words: []speech.WordInfo{
						{Word: "hello"}, {Word: "world"},
					},
				}}},
				{Alternatives: []speech.Alternative{{
					Transcript: "goodbye",
					Words:      []speech.WordInfo{{Word: "goodbye"}},
				}}},
			},
		},
	}
	state, err := runner.RunStep(ctx, asset.ID, "transcription", nil)
	if err != nil {
		t.Fatalf("poll run: %v", err)
	}
	if state.Status != library.StepSucceeded {
		t.Fatalf("status = %q", state.Status)
	}
	if state.Metadata["transcript"] != "hello world goodbye" {
		t.Fatalf("transcript = %v", state.Metadata["transcript"])
	}
	if count, ok := state.Metadata["word_count"].(float64); !ok || count != 3 {
		t.Fatalf("word_count = %v", state.Metadata["word_count"])
	}
}

func TestTranscriptionRequiresIngestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")
	runner := newStepsRunner(t, store, nil, &fakeRecognizer{})

	_, err := runner.RunStep(context.Background(), asset.ID, "transcription", nil)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("err = %v, want precondition", err)
	}
	if !strings.Contains(err.Error(), `"ingest"`) {
		t.Fatalf("error does not name missing step: %v", err)
	}
}

func TestDefinitionsOmitStepsWithoutClients(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	defs := steps.Definitions(cfg, nil, nil)
	if len(defs) != 1 || defs[0].ID != "ingest" {
		t.Fatalf("defs = %d, want only ingest", len(defs))
	}
}

func TestDefinitionsAutoTranscriptionFollowsConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutoTranscription())
	defs := steps.Definitions(cfg, &fakeAnnotator{}, &fakeRecognizer{})
	var found bool
	for _, def := range defs {
		if def.ID == "transcription" {
			found = true
			if !def.AutoStart {
				t.Fatal("transcription should auto-start")
			}
		}
	}
	if !found {
		t.Fatal("transcription step missing")
	}
}
