package testsupport

import (
	"path/filepath"
	"testing"

	"montage/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.MediaDir = filepath.Join(base, "media")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithAPIToken sets the daemon API token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Paths.APIToken = token
	}
}

// WithInboxEnabled turns on the upload inbox watcher.
func WithInboxEnabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.InboxEnabled = true
	}
}

// WithAutoTranscription promotes the transcription step to auto-start.
func WithAutoTranscription() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.AutoTranscription = true
	}
}

// WithProviderKeys fills every provider credential with a test value.
func WithProviderKeys() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Providers.VideoIntel.APIKey = "test"
		cfg.Providers.Speech.APIKey = "test"
		cfg.Providers.GenVideo.APIKey = "test"
		cfg.Providers.VFX.APIKey = "test"
	}
}
