package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"montage/internal/notifications"
	"montage/internal/testsupport"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	service := notifications.NewService(cfg)
	if err := service.NotifyStepCompleted(context.Background(), "clip", "Ingest"); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test: %v", err)
	}
}

func TestNtfySendsHeadersAndBody(t *testing.T) {
	var gotTitle, gotTags, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Steps = true

	service := notifications.NewService(cfg)
	if err := service.NotifyStepCompleted(context.Background(), "clip.mp4", "Scene Analysis"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotTitle != "Montage - Step Complete" {
		t.Fatalf("title = %q", gotTitle)
	}
	if gotTags != "montage,step,completed" {
		t.Fatalf("tags = %q", gotTags)
	}
	if gotBody != "Scene Analysis finished for clip.mp4" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestNtfySkipsDisabledCategories(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Steps = false
	cfg.Notifications.Jobs = false
	cfg.Notifications.Errors = false

	service := notifications.NewService(cfg)
	ctx := context.Background()
	_ = service.NotifyStepCompleted(ctx, "a", "b")
	_ = service.NotifyJobFailed(ctx, "generate", "boom")
	_ = service.NotifyError(ctx, nil, "pipeline")
	if hits != 0 {
		t.Fatalf("hits = %d, want 0", hits)
	}
}

func TestNtfyErrorStatusReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	if err := service.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 502")
	}
}
