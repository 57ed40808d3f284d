package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"montage/internal/config"
	"montage/internal/daemon"
	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/operations"
	"montage/internal/pipeline"
	"montage/internal/steps"
	"montage/internal/testsupport"
)

type stubProvider struct {
	kind   library.JobKind
	status operations.Status
}

func (p *stubProvider) Kind() library.JobKind         { return p.kind }
func (p *stubProvider) Validate(map[string]any) error { return nil }
func (p *stubProvider) Start(context.Context, map[string]any) (string, error) {
	return "operations/stub-1", nil
}
func (p *stubProvider) Poll(context.Context, string) (operations.Status, error) {
	return p.status, nil
}
func (p *stubProvider) Fetch(context.Context, map[string]any) ([]byte, string, error) {
	return []byte("generated video"), "video/mp4", nil
}

func newTestDaemon(t *testing.T, cfg *config.Config, providers ...operations.Provider) (*daemon.Daemon, *library.Store) {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	registry, err := pipeline.NewRegistry(steps.Definitions(cfg, nil, nil)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	runner := pipeline.NewRunner(registry, store, logger)
	adapter := operations.NewAdapter(store, runner, logger, providers...)

	d, err := daemon.New(cfg, store, logger, runner, adapter)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})
	return d, store
}

func apiURL(d *daemon.Daemon, path string) string {
	return "http://" + d.Addr() + path
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStatusEndpointReportsRunning(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t))

	resp, err := http.Get(apiURL(d, "/api/status"))
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload struct {
		Running bool `json:"running"`
		PID     int  `json:"pid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Running || payload.PID != os.Getpid() {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestBearerTokenRequiredWhenConfigured(t *testing.T) {
	d, _ := newTestDaemon(t, testsupport.NewConfig(t, testsupport.WithAPIToken("sekrit")))

	resp, err := http.Get(apiURL(d, "/api/status"))
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, apiURL(d, "/api/status"), nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d", resp.StatusCode)
	}
}

func TestUploadRunsPipelineAndExposesIt(t *testing.T) {
	d, store := newTestDaemon(t, testsupport.NewConfig(t))

	body, _ := json.Marshal(map[string]any{
		"name":     "clip.mp4",
		"mimeType": "video/mp4",
		"data":     []byte("video payload"),
	})
	resp, err := http.Post(apiURL(d, "/api/assets"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST asset: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created struct {
		Asset struct {
			ID string `json:"id"`
		} `json:"asset"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		state, err := store.GetStep(context.Background(), created.Asset.ID, "ingest")
		return err == nil && state != nil && state.Status == library.StepSucceeded
	})

	pipelineResp, err := http.Get(apiURL(d, "/api/assets/"+created.Asset.ID+"/pipeline"))
	if err != nil {
		t.Fatalf("GET pipeline: %v", err)
	}
	defer pipelineResp.Body.Close()
	var pipelineView struct {
		Steps []struct {
			StepID string `json:"stepId"`
			Status string `json:"status"`
		} `json:"steps"`
	}
	if err := json.NewDecoder(pipelineResp.Body).Decode(&pipelineView); err != nil {
		t.Fatalf("decode pipeline: %v", err)
	}
	if len(pipelineView.Steps) == 0 {
		t.Fatal("pipeline has no steps")
	}
	if pipelineView.Steps[0].StepID != "ingest" || pipelineView.Steps[0].Status != "succeeded" {
		t.Fatalf("steps = %+v", pipelineView.Steps)
	}
}

func TestRunStepEndpointReturnsStepState(t *testing.T) {
	d, store := newTestDaemon(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")

	resp, err := http.Post(apiURL(d, "/api/assets/"+asset.ID+"/pipeline/ingest"), "application/json", nil)
	if err != nil {
		t.Fatalf("POST run step: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stepResp struct {
		Step struct {
			StepID string `json:"stepId"`
			Status string `json:"status"`
		} `json:"step"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stepResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stepResp.Step.Status != "succeeded" {
		t.Fatalf("step = %+v", stepResp.Step)
	}
}

func TestUnknownStepReturnsBadRequest(t *testing.T) {
	d, store := newTestDaemon(t, testsupport.NewConfig(t))
	asset := testsupport.SeedAsset(t, store, "clip.mp4")

	resp, err := http.Post(apiURL(d, "/api/assets/"+asset.ID+"/pipeline/nope"), "application/json", nil)
	if err != nil {
		t.Fatalf("POST run step: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	provider := &stubProvider{
		kind:   library.JobGenerate,
		status: operations.Status{State: operations.StateSucceeded, Output: map[string]any{"uri": "u"}},
	}
	d, store := newTestDaemon(t, testsupport.NewConfig(t), provider)

	body, _ := json.Marshal(map[string]any{
		"kind":   "generate",
		"params": map[string]any{"prompt": "sunset"},
	})
	resp, err := http.Post(apiURL(d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST job: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created struct {
		Job struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Job.Status != "running" {
		t.Fatalf("created = %+v", created.Job)
	}

	pollResp, err := http.Get(apiURL(d, "/api/jobs/"+created.Job.ID))
	if err != nil {
		t.Fatalf("GET job: %v", err)
	}
	defer pollResp.Body.Close()
	var polled struct {
		Job struct {
			Status        string `json:"status"`
			ResultAssetID string `json:"resultAssetId"`
		} `json:"job"`
	}
	if err := json.NewDecoder(pollResp.Body).Decode(&polled); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if polled.Job.Status != "succeeded" || polled.Job.ResultAssetID == "" {
		t.Fatalf("polled = %+v", polled.Job)
	}

	asset, err := store.GetAsset(context.Background(), polled.Job.ResultAssetID)
	if err != nil || asset == nil {
		t.Fatalf("result asset missing: %v", err)
	}
	if asset.Source != library.SourceGenerated {
		t.Fatalf("source = %q", asset.Source)
	}
}

func TestJobsEndpointFiltersByOwner(t *testing.T) {
	provider := &stubProvider{
		kind:   library.JobEffect,
		status: operations.Status{State: operations.StateRunning},
	}
	d, store := newTestDaemon(t, testsupport.NewConfig(t), provider)

	seed := []library.NewJob{
		{Kind: library.JobEffect, AssetID: "asset-a", ProjectID: "proj-1", ParamsJSON: "{}"},
		{Kind: library.JobEffect, AssetID: "asset-b", ProjectID: "proj-2", ParamsJSON: "{}"},
	}
	for i, input := range seed {
		if _, err := store.CreateJob(context.Background(), input); err != nil {
			t.Fatalf("CreateJob %d: %v", i, err)
		}
	}

	fetch := func(query string) []struct {
		AssetID   string `json:"assetId"`
		ProjectID string `json:"projectId"`
	} {
		t.Helper()
		resp, err := http.Get(apiURL(d, "/api/jobs"+query))
		if err != nil {
			t.Fatalf("GET jobs%s: %v", query, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d for %q", resp.StatusCode, query)
		}
		var payload struct {
			Jobs []struct {
				AssetID   string `json:"assetId"`
				ProjectID string `json:"projectId"`
			} `json:"jobs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return payload.Jobs
	}

	if all := fetch(""); len(all) != 2 {
		t.Fatalf("all jobs = %d, want 2", len(all))
	}
	byAsset := fetch("?asset=asset-a")
	if len(byAsset) != 1 || byAsset[0].AssetID != "asset-a" {
		t.Fatalf("asset filter = %+v", byAsset)
	}
	byProject := fetch("?project=proj-2")
	if len(byProject) != 1 || byProject[0].ProjectID != "proj-2" {
		t.Fatalf("project filter = %+v", byProject)
	}
}

func TestSecondDaemonInstanceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newTestDaemon(t, cfg)
	_ = d

	logger := logging.NewNop()
	registry, err := pipeline.NewRegistry(steps.Definitions(cfg, nil, nil)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	runner := pipeline.NewRunner(registry, store, logger)
	adapter := operations.NewAdapter(store, runner, logger)
	second, err := daemon.New(cfg, store, logger, runner, adapter)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance acquired lock")
	}
}

func TestInboxWatcherRegistersDroppedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInboxEnabled())
	d, store := newTestDaemon(t, cfg)
	_ = d

	path := filepath.Join(cfg.Paths.InboxDir, "drop.mp4")
	if err := os.WriteFile(path, []byte("dropped video"), 0o644); err != nil {
		t.Fatalf("write inbox file: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		assets, err := store.ListAssets(context.Background(), "")
		if err != nil {
			return false
		}
		for _, asset := range assets {
			if asset.Name == "drop.mp4" {
				return true
			}
		}
		return false
	})

	assets, err := store.ListAssets(context.Background(), "")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	var found *library.Asset
	for _, asset := range assets {
		if asset.Name == "drop.mp4" {
			found = asset
		}
	}
	if found == nil {
		t.Fatal("dropped file not registered")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("inbox file not moved: %v", err)
	}
	if found.Source != library.SourceUpload {
		t.Fatalf("source = %q", found.Source)
	}
}
