package videointel_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"montage/internal/providers/videointel"
)

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := videointel.New("", "https://example"); err == nil {
		t.Fatal("expected error for empty api key")
	}
	if _, err := videointel.New("key", ""); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestAnnotateReturnsOperationName(t *testing.T) {
	var sawAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/videos:annotate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"name":"operations/op-42"}`))
	}))
	defer server.Close()

	client, err := videointel.New("secret", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	name, err := client.Annotate(context.Background(), videointel.AnnotateRequest{
		InputURI: "file:///media/clip.mp4",
		Features: []string{videointel.FeatureShotChangeDetection},
	})
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if name != "operations/op-42" {
		t.Fatalf("name = %q", name)
	}
	if sawAuth != "Bearer secret" {
		t.Fatalf("auth = %q", sawAuth)
	}
}

func TestAnnotateValidatesInput(t *testing.T) {
	client, err := videointel.New("key", "https://example")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Annotate(context.Background(), videointel.AnnotateRequest{Features: []string{"X"}}); err == nil {
		t.Fatal("expected error without input")
	}
	if _, err := client.Annotate(context.Background(), videointel.AnnotateRequest{InputURI: "u"}); err == nil {
		t.Fatal("expected error without features")
	}
}

func TestGetOperationDecodesCompletedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/operations/op-42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{
            "name": "operations/op-42",
            "done": true,
            "response": {
                "annotationResults": [{
                    "shotAnnotations": [
                        {"startTimeOffset": "0s", "endTimeOffset": "3.2s"},
                        {"startTimeOffset": "3.2s", "endTimeOffset": "7s"}
                    ],
                    "segmentLabelAnnotations": [
                        {"entity": {"description": "beach"}}
                    ]
                }]
            }
        }`))
	}))
	defer server.Close()

	client, err := videointel.New("key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	op, err := client.GetOperation(context.Background(), "operations/op-42")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if !op.Done {
		t.Fatal("expected done")
	}
	results := op.Response.AnnotationResults
	if len(results) != 1 || len(results[0].ShotAnnotations) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].SegmentLabelAnnotations[0].Entity.Description != "beach" {
		t.Fatalf("label = %+v", results[0].SegmentLabelAnnotations)
	}
}

func TestGetOperationSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"operations/op-1","done":true,"error":{"code":3,"message":"unsupported codec"}}`))
	}))
	defer server.Close()

	client, err := videointel.New("key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	op, err := client.GetOperation(context.Background(), "operations/op-1")
	if err != nil {
		t.Fatalf("GetOperation: %v", err)
	}
	if op.Error == nil || op.Error.Message != "unsupported codec" {
		t.Fatalf("error = %+v", op.Error)
	}
}
