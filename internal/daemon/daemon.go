package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"montage/internal/config"
	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/notifications"
	"montage/internal/operations"
	"montage/internal/pipeline"
)

// Daemon coordinates the API server and inbox watcher and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *library.Store
	runner   *pipeline.Runner
	adapter  *operations.Adapter
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	api     *apiServer
	watcher *inboxWatcher

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DBPath       string
	LockFilePath string
	MediaDir     string
	Health       library.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *library.Store, logger *slog.Logger, runner *pipeline.Runner, adapter *operations.Adapter) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || runner == nil || adapter == nil {
		return nil, errors.New("daemon requires config, store, logger, runner, and adapter")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "montaged.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		runner:   runner,
		adapter:  adapter,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	runner.SetNotifier(d.notifier)
	adapter.SetNotifier(d.notifier)

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api

	if cfg.Pipeline.InboxEnabled {
		d.watcher = newInboxWatcher(cfg.Paths.InboxDir, d, logger)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the API server and watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another montage daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	if d.watcher != nil {
		if err := d.watcher.start(d.ctx); err != nil {
			d.api.stop()
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("montage daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.watcher != nil {
		d.watcher.stop()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("montage daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API server's listen address, empty until started.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// RegisterUpload registers an inbox file as an asset and triggers the
// pipeline on it.
func (d *Daemon) RegisterUpload(ctx context.Context, path string) (*library.Asset, error) {
	asset, err := d.store.RegisterAsset(ctx, path, "")
	if err != nil {
		return nil, err
	}
	d.logger.Info("inbox file registered",
		logging.String(logging.FieldAssetID, asset.ID),
		logging.String("name", asset.Name))
	if err := d.notifier.NotifyAssetRegistered(ctx, asset.Name, string(asset.Kind)); err != nil {
		d.logger.Warn("notification failed", logging.Error(err))
	}
	d.runner.TriggerAsync(asset.ID)
	return asset, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("health query failed", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       filepath.Join(d.cfg.Paths.LogDir, "montage.db"),
		LockFilePath: d.lockPath,
		MediaDir:     d.store.MediaDir(),
		Health:       health,
	}
}
