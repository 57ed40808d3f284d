package daemonctl_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"montage/internal/api"
	"montage/internal/daemonctl"
)

func TestStatusSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 42})
	}))
	defer server.Close()

	client, err := daemonctl.New(server.URL, daemonctl.WithToken("sekrit"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("status = %+v", status)
	}
}

func TestErrorPayloadSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"step ingest has not completed"}`))
	}))
	defer server.Close()

	client, err := daemonctl.New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.RunStep(context.Background(), "a1", "scene-analysis", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "daemon returned 409: step ingest has not completed"
	if err.Error() != want {
		t.Fatalf("error = %q, want %q", err.Error(), want)
	}
}

func TestUnreachableDaemonMapsToSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client, err := daemonctl.New(addr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Status(context.Background())
	if err != daemonctl.ErrDaemonNotRunning {
		t.Fatalf("err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestWaitForJobStopsOnTerminalStatus(t *testing.T) {
	polls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := "running"
		if polls >= 3 {
			status = "succeeded"
		}
		_ = json.NewEncoder(w).Encode(api.JobResponse{Job: api.JobView{ID: "j1", Status: status}})
	}))
	defer server.Close()

	client, err := daemonctl.New(server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	job, err := client.WaitForJob(context.Background(), "j1", time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForJob: %v", err)
	}
	if job.Status != "succeeded" || polls != 3 {
		t.Fatalf("job = %+v, polls = %d", job, polls)
	}
}
