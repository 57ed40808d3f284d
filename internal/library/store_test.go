package library_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"montage/internal/library"
	"montage/internal/testsupport"
)

func TestCreateAssetWritesPayloadAndRow(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	asset, err := store.CreateAsset(ctx, library.NewAsset{
		Name:      "clip.mp4",
		MIMEType:  "video/mp4",
		ProjectID: "proj-1",
		Data:      []byte("payload"),
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if asset.Kind != library.KindVideo {
		t.Fatalf("kind = %q, want %q", asset.Kind, library.KindVideo)
	}
	if asset.SizeBytes != int64(len("payload")) {
		t.Fatalf("size = %d, want %d", asset.SizeBytes, len("payload"))
	}
	data, err := os.ReadFile(asset.StoragePath)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("payload = %q", data)
	}

	fetched, err := store.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected asset row")
	}
	if fetched.ProjectID != "proj-1" {
		t.Fatalf("project = %q", fetched.ProjectID)
	}
	if fetched.Source != library.SourceUpload {
		t.Fatalf("source = %q", fetched.Source)
	}
}

func TestCreateAssetRejectsEmptyPayload(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	if _, err := store.CreateAsset(context.Background(), library.NewAsset{Name: "x"}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestRegisterAssetMovesFileIntoMediaDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "upload.wav")
	if err := os.WriteFile(source, []byte("audio bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	asset, err := store.RegisterAsset(ctx, source, "proj-2")
	if err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	if asset.Kind != library.KindAudio {
		t.Fatalf("kind = %q, want audio", asset.Kind)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("source still exists: %v", err)
	}
	if filepath.Dir(asset.StoragePath) != store.MediaDir() {
		t.Fatalf("storage path %q not under media dir", asset.StoragePath)
	}
	if _, err := os.Stat(asset.StoragePath); err != nil {
		t.Fatalf("stat moved file: %v", err)
	}
}

func TestListAssetsFiltersByProject(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, project := range []string{"a", "a", "b"} {
		if _, err := store.CreateAsset(ctx, library.NewAsset{
			Name:      "clip.mp4",
			MIMEType:  "video/mp4",
			ProjectID: project,
			Data:      []byte("x"),
		}); err != nil {
			t.Fatalf("CreateAsset: %v", err)
		}
	}

	all, err := store.ListAssets(ctx, "")
	if err != nil {
		t.Fatalf("ListAssets all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}
	onlyA, err := store.ListAssets(ctx, "a")
	if err != nil {
		t.Fatalf("ListAssets a: %v", err)
	}
	if len(onlyA) != 2 {
		t.Fatalf("project a = %d, want 2", len(onlyA))
	}
}

func TestGetAssetReturnsNilWhenMissing(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	asset, err := store.GetAsset(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset != nil {
		t.Fatalf("expected nil asset, got %+v", asset)
	}
}

func TestMergeStepCreatesRowWithIdleDefaults(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	asset := testsupport.SeedAsset(t, store, "clip.mp4")

	running := library.StepRunning
	state, err := store.MergeStep(ctx, asset.ID, "scene-analysis", library.StepPatch{Status: &running})
	if err != nil {
		t.Fatalf("MergeStep: %v", err)
	}
	if state.Status != library.StepRunning {
		t.Fatalf("status = %q", state.Status)
	}
	if state.StepID != "scene-analysis" {
		t.Fatalf("step id = %q", state.StepID)
	}
}

func TestMergeStepLeavesAbsentFieldsUntouched(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	asset := testsupport.SeedAsset(t, store, "clip.mp4")

	waiting := library.StepWaiting
	label := "Scene Analysis"
	if _, err := store.MergeStep(ctx, asset.ID, "scene-analysis", library.StepPatch{
		Status:   &waiting,
		Label:    &label,
		Metadata: map[string]any{"operation": "op-123"},
	}); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	succeeded := library.StepSucceeded
	state, err := store.MergeStep(ctx, asset.ID, "scene-analysis", library.StepPatch{Status: &succeeded})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if state.Status != library.StepSucceeded {
		t.Fatalf("status = %q", state.Status)
	}
	if state.Label != "Scene Analysis" {
		t.Fatalf("label lost: %q", state.Label)
	}
	if state.Metadata["operation"] != "op-123" {
		t.Fatalf("metadata lost: %v", state.Metadata)
	}
}

func TestGetStepStatesKeysByStepID(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	asset := testsupport.SeedAsset(t, store, "clip.mp4")

	succeeded := library.StepSucceeded
	failed := library.StepFailed
	if _, err := store.MergeStep(ctx, asset.ID, "ingest", library.StepPatch{Status: &succeeded}); err != nil {
		t.Fatalf("merge ingest: %v", err)
	}
	message := "provider rejected input"
	if _, err := store.MergeStep(ctx, asset.ID, "scene-analysis", library.StepPatch{
		Status:       &failed,
		ErrorMessage: &message,
	}); err != nil {
		t.Fatalf("merge scene-analysis: %v", err)
	}

	states, err := store.GetStepStates(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetStepStates: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("states = %d, want 2", len(states))
	}
	if states["ingest"].Status != library.StepSucceeded {
		t.Fatalf("ingest status = %q", states["ingest"].Status)
	}
	if states["scene-analysis"].ErrorMessage != "provider rejected input" {
		t.Fatalf("error message = %q", states["scene-analysis"].ErrorMessage)
	}
}

func TestJobLifecycleMerges(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	job, err := store.CreateJob(ctx, library.NewJob{
		Kind:       library.JobGenerate,
		ParamsJSON: `{"prompt":"sunset over water"}`,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != library.JobPending {
		t.Fatalf("status = %q", job.Status)
	}

	running := library.JobRunning
	handle := "operations/op-1"
	progress := 0.25
	merged, err := store.MergeJob(ctx, job.ID, library.JobPatch{
		Status:         &running,
		ProviderHandle: &handle,
		Progress:       &progress,
	})
	if err != nil {
		t.Fatalf("MergeJob: %v", err)
	}
	if merged.ProviderHandle != "operations/op-1" || merged.Progress != 0.25 {
		t.Fatalf("merged = %+v", merged)
	}

	succeeded := library.JobSucceeded
	resultID := "asset-9"
	final, err := store.MergeJob(ctx, job.ID, library.JobPatch{
		Status:        &succeeded,
		ResultAssetID: &resultID,
	})
	if err != nil {
		t.Fatalf("final merge: %v", err)
	}
	if final.ProviderHandle != "operations/op-1" {
		t.Fatalf("handle lost: %q", final.ProviderHandle)
	}
	if final.ResultAssetID != "asset-9" {
		t.Fatalf("result id = %q", final.ResultAssetID)
	}
}

func TestFindActiveJobMatchesParamsAndSkipsTerminal(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	params := `{"prompt":"a"}`
	first, err := store.CreateJob(ctx, library.NewJob{Kind: library.JobGenerate, ParamsJSON: params})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	active, err := store.FindActiveJob(ctx, library.JobGenerate, "", params)
	if err != nil {
		t.Fatalf("FindActiveJob: %v", err)
	}
	if active == nil || active.ID != first.ID {
		t.Fatalf("active = %+v, want %s", active, first.ID)
	}

	failed := library.JobFailed
	if _, err := store.MergeJob(ctx, first.ID, library.JobPatch{Status: &failed}); err != nil {
		t.Fatalf("MergeJob: %v", err)
	}
	active, err = store.FindActiveJob(ctx, library.JobGenerate, "", params)
	if err != nil {
		t.Fatalf("FindActiveJob after fail: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active job, got %+v", active)
	}
}

func TestFindActiveJobScopesToOwningAsset(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	params := `{"input":{"style":"sepia"}}`
	forA, err := store.CreateJob(ctx, library.NewJob{
		Kind:       library.JobEffect,
		AssetID:    "asset-a",
		ParamsJSON: params,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Identical params against a different asset must not reuse asset-a's job.
	other, err := store.FindActiveJob(ctx, library.JobEffect, "asset-b", params)
	if err != nil {
		t.Fatalf("FindActiveJob asset-b: %v", err)
	}
	if other != nil {
		t.Fatalf("asset-b matched asset-a's job %s", other.ID)
	}

	same, err := store.FindActiveJob(ctx, library.JobEffect, "asset-a", params)
	if err != nil {
		t.Fatalf("FindActiveJob asset-a: %v", err)
	}
	if same == nil || same.ID != forA.ID {
		t.Fatalf("asset-a active = %+v, want %s", same, forA.ID)
	}

	// Asset-less lookups only see asset-less jobs.
	unowned, err := store.FindActiveJob(ctx, library.JobEffect, "", params)
	if err != nil {
		t.Fatalf("FindActiveJob unowned: %v", err)
	}
	if unowned != nil {
		t.Fatalf("unowned lookup matched %s", unowned.ID)
	}
}

func TestListJobsFiltersByAssetAndProject(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	seed := []library.NewJob{
		{Kind: library.JobEffect, AssetID: "asset-a", ProjectID: "proj-1", ParamsJSON: "{}"},
		{Kind: library.JobEffect, AssetID: "asset-b", ProjectID: "proj-1", ParamsJSON: "{}"},
		{Kind: library.JobGenerate, ProjectID: "proj-2", ParamsJSON: "{}"},
	}
	var failedID string
	for i, input := range seed {
		job, err := store.CreateJob(ctx, input)
		if err != nil {
			t.Fatalf("CreateJob %d: %v", i, err)
		}
		if i == 0 {
			failedID = job.ID
		}
	}
	failed := library.JobFailed
	if _, err := store.MergeJob(ctx, failedID, library.JobPatch{Status: &failed}); err != nil {
		t.Fatalf("MergeJob: %v", err)
	}

	all, err := store.ListJobs(ctx, library.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d, want 3", len(all))
	}

	byAsset, err := store.ListJobs(ctx, library.JobFilter{AssetID: "asset-a"})
	if err != nil {
		t.Fatalf("ListJobs asset: %v", err)
	}
	if len(byAsset) != 1 || byAsset[0].AssetID != "asset-a" {
		t.Fatalf("asset-a jobs = %+v", byAsset)
	}

	byProject, err := store.ListJobs(ctx, library.JobFilter{ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("ListJobs project: %v", err)
	}
	if len(byProject) != 2 {
		t.Fatalf("proj-1 jobs = %d, want 2", len(byProject))
	}

	combined, err := store.ListJobs(ctx, library.JobFilter{Status: library.JobFailed, ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("ListJobs combined: %v", err)
	}
	if len(combined) != 1 || combined[0].ID != failedID {
		t.Fatalf("combined jobs = %+v", combined)
	}
}

func TestHealthCountsWaitingAndFailed(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	asset := testsupport.SeedAsset(t, store, "clip.mp4")

	waiting := library.StepWaiting
	failed := library.StepFailed
	if _, err := store.MergeStep(ctx, asset.ID, "scene-analysis", library.StepPatch{Status: &waiting}); err != nil {
		t.Fatalf("merge waiting: %v", err)
	}
	if _, err := store.MergeStep(ctx, asset.ID, "transcription", library.StepPatch{Status: &failed}); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if _, err := store.CreateJob(ctx, library.NewJob{Kind: library.JobEffect, ParamsJSON: "{}"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Assets != 1 || health.StepsWaiting != 1 || health.StepsFailed != 1 || health.JobsRunning != 1 {
		t.Fatalf("health = %+v", health)
	}
}
