package testsupport

import (
	"context"
	"testing"

	"montage/internal/config"
	"montage/internal/library"
)

// MustOpenStore opens a library store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

// SeedAsset creates a small video asset for tests to run pipelines against.
func SeedAsset(t testing.TB, store *library.Store, name string) *library.Asset {
	t.Helper()

	asset, err := store.CreateAsset(context.Background(), library.NewAsset{
		Name:     name,
		MIMEType: "video/mp4",
		Data:     []byte("test payload"),
	})
	if err != nil {
		t.Fatalf("seed asset: %v", err)
	}
	return asset
}
