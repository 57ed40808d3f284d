// Package daemonrun wires configuration, storage, providers, and the
// pipeline into a running montaged process.
package daemonrun

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"log/slog"

	"montage/internal/config"
	"montage/internal/daemon"
	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/operations"
	"montage/internal/pipeline"
	"montage/internal/providers/genvideo"
	"montage/internal/providers/speech"
	"montage/internal/providers/vfx"
	"montage/internal/providers/videointel"
	"montage/internal/steps"
)

// Run starts the montage daemon and blocks until the process receives
// SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "montaged.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := library.Open(cfg)
	if err != nil {
		logger.Error("open library store", logging.Error(err))
		return err
	}
	defer store.Close()

	annotator, recognizer, providers := buildProviders(cfg, logger)

	registry, err := pipeline.NewRegistry(steps.Definitions(cfg, annotator, recognizer)...)
	if err != nil {
		return fmt.Errorf("build step registry: %w", err)
	}
	runner := pipeline.NewRunner(registry, store, logger)
	adapter := operations.NewAdapter(store, runner, logger, providers...)

	d, err := daemon.New(cfg, store, logger, runner, adapter)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("montage daemon shutting down")
	return nil
}

// buildProviders constructs analysis clients and generative job providers
// from configured credentials. Providers without an API key are skipped,
// which disables the steps and job kinds that depend on them.
func buildProviders(cfg *config.Config, logger *slog.Logger) (steps.Annotator, steps.Recognizer, []operations.Provider) {
	var annotator steps.Annotator
	if cfg.Providers.VideoIntel.APIKey != "" {
		client, err := videointel.New(cfg.Providers.VideoIntel.APIKey, cfg.Providers.VideoIntel.BaseURL,
			videointel.WithHTTPClient(providerHTTPClient(cfg.Providers.VideoIntel)))
		if err != nil {
			logger.Warn("video intelligence disabled", logging.Error(err))
		} else {
			annotator = client
		}
	}

	var recognizer steps.Recognizer
	if cfg.Providers.Speech.APIKey != "" {
		client, err := speech.New(cfg.Providers.Speech.APIKey, cfg.Providers.Speech.BaseURL,
			speech.WithHTTPClient(providerHTTPClient(cfg.Providers.Speech)))
		if err != nil {
			logger.Warn("speech recognition disabled", logging.Error(err))
		} else {
			recognizer = client
		}
	}

	var providers []operations.Provider
	if cfg.Providers.GenVideo.APIKey != "" {
		client, err := genvideo.New(cfg.Providers.GenVideo.APIKey, cfg.Providers.GenVideo.BaseURL,
			genvideo.WithHTTPClient(providerHTTPClient(cfg.Providers.GenVideo)))
		if err != nil {
			logger.Warn("video generation disabled", logging.Error(err))
		} else {
			providers = append(providers, genvideo.NewProvider(client))
		}
	}
	if cfg.Providers.VFX.APIKey != "" {
		client, err := vfx.New(cfg.Providers.VFX.APIKey, cfg.Providers.VFX.BaseURL,
			vfx.WithHTTPClient(providerHTTPClient(cfg.Providers.VFX)))
		if err != nil {
			logger.Warn("effects rendering disabled", logging.Error(err))
		} else {
			providers = append(providers, vfx.NewProvider(client))
		}
	}

	return annotator, recognizer, providers
}

func providerHTTPClient(p config.Provider) *http.Client {
	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
