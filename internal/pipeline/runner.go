package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/notifications"
	"montage/internal/services"
)

// Runner schedules steps against assets. All step-starting and poll-driven
// reconciliation happens synchronously within the call that triggers it;
// waiting work continues on the provider side and is observed on a later run.
type Runner struct {
	registry *Registry
	store    *library.Store
	logger   *slog.Logger
	notifier notifications.Service

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewRunner wires a registry and store into a scheduler.
func NewRunner(registry *Registry, store *library.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		registry: registry,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		inflight: make(map[string]struct{}),
	}
}

// SetNotifier installs the service notified when steps finish or fail.
// Notification failures are logged, never propagated.
func (r *Runner) SetNotifier(notifier notifications.Service) {
	r.notifier = notifier
}

// Registry exposes the step catalog behind the runner.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Pipeline returns the full per-step view for an asset: one entry per
// applicable registry step, merged with persisted rows. Steps that never ran
// appear as idle.
func (r *Runner) Pipeline(ctx context.Context, assetID string) ([]*library.StepState, error) {
	asset, err := r.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "state", fmt.Sprintf("asset %q", assetID), nil)
	}
	states, err := r.store.GetStepStates(ctx, assetID)
	if err != nil {
		return nil, err
	}

	defs := r.registry.ForKind(asset.Kind)
	out := make([]*library.StepState, 0, len(defs))
	for _, def := range defs {
		if state, ok := states[def.ID]; ok {
			if state.Label == "" {
				state.Label = def.Label
			}
			out = append(out, state)
			continue
		}
		out = append(out, &library.StepState{
			AssetID: assetID,
			StepID:  def.ID,
			Label:   def.Label,
			Status:  library.StepIdle,
		})
	}
	return out, nil
}

// RunEligibleSteps starts every auto-start step whose prerequisites are
// satisfied and which has not run yet. A step failure is recorded on that
// step alone and never aborts its siblings.
func (r *Runner) RunEligibleSteps(ctx context.Context, assetID string) error {
	asset, err := r.store.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if asset == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "run", fmt.Sprintf("asset %q", assetID), nil)
	}
	states, err := r.store.GetStepStates(ctx, assetID)
	if err != nil {
		return err
	}

	for _, def := range r.registry.ForKind(asset.Kind) {
		if !def.AutoStart {
			continue
		}
		if state, ok := states[def.ID]; ok && state.Status != library.StepIdle {
			continue
		}
		if missing := r.unmetPrerequisite(def, states); missing != "" {
			continue
		}

		state, err := r.runStep(ctx, asset, def, nil)
		if err != nil {
			r.logger.Warn("step failed",
				logging.String(logging.FieldAssetID, assetID),
				logging.String(logging.FieldStep, def.ID),
				logging.Error(err))
		}
		if state != nil {
			states[def.ID] = state
		}
	}
	return nil
}

// RunStep executes a single step synchronously and returns its resulting
// state. Prerequisite violations are returned to the caller and never
// persisted.
func (r *Runner) RunStep(ctx context.Context, assetID, stepID string, params map[string]any) (*library.StepState, error) {
	def, ok := r.registry.Lookup(stepID)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", fmt.Sprintf("unknown step %q", stepID), nil)
	}
	asset, err := r.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "run", fmt.Sprintf("asset %q", assetID), nil)
	}
	if !def.AppliesTo(asset.Kind) {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run",
			fmt.Sprintf("step %q does not apply to %s assets", stepID, asset.Kind), nil)
	}

	states, err := r.store.GetStepStates(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if missing := r.unmetPrerequisite(def, states); missing != "" {
		return nil, services.Precondition(missing)
	}

	if current, ok := states[def.ID]; ok {
		// A step already executing in this process, or one that finished
		// successfully, is returned as-is. Waiting steps run again so they
		// can poll their in-flight operation; failed steps run again only
		// on this explicit resubmission path.
		if current.Status == library.StepRunning || current.Status == library.StepSucceeded {
			return current, nil
		}
	}

	return r.runStep(ctx, asset, def, params)
}

// TriggerAsync evaluates eligible steps on a detached goroutine. Failures are
// logged and persisted per step, never propagated.
func (r *Runner) TriggerAsync(assetID string) {
	go func() {
		ctx := services.WithAssetID(context.Background(), assetID)
		if err := r.RunEligibleSteps(ctx, assetID); err != nil {
			r.logger.Error("async pipeline trigger failed",
				logging.String(logging.FieldAssetID, assetID),
				logging.Error(err))
			if r.notifier != nil {
				if notifyErr := r.notifier.NotifyError(ctx, err, "pipeline trigger"); notifyErr != nil {
					r.logger.Warn("notification failed", logging.Error(notifyErr))
				}
			}
		}
	}()
}

func (r *Runner) runStep(ctx context.Context, asset *library.Asset, def StepDefinition, params map[string]any) (*library.StepState, error) {
	key := asset.ID + "/" + def.ID
	r.mu.Lock()
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return r.store.GetStep(ctx, asset.ID, def.ID)
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, key)
		r.mu.Unlock()
	}()

	ctx = services.WithStep(services.WithAssetID(ctx, asset.ID), def.ID)

	prior, err := r.store.GetStep(ctx, asset.ID, def.ID)
	if err != nil {
		return nil, err
	}

	status := library.StepRunning
	if prior != nil && prior.Status == library.StepWaiting {
		status = library.StepWaiting
	}
	empty := ""
	if _, err := r.store.MergeStep(ctx, asset.ID, def.ID, library.StepPatch{
		Status:       &status,
		Label:        &def.Label,
		ErrorMessage: &empty,
	}); err != nil {
		return nil, err
	}

	r.logger.Info("running step", logging.Args(logging.ContextFields(ctx)...)...)

	result, runErr := def.Run(ctx, asset, prior, params)
	if runErr != nil {
		details := services.Details(runErr)
		failed := library.StepFailed
		state, mergeErr := r.store.MergeStep(ctx, asset.ID, def.ID, library.StepPatch{
			Status:       &failed,
			ErrorMessage: &details.Message,
		})
		if mergeErr != nil {
			return nil, mergeErr
		}
		r.logger.Warn("step failed", append(
			logging.Args(logging.ContextFields(ctx)...),
			logging.Error(runErr))...)
		if r.notifier != nil {
			if err := r.notifier.NotifyStepFailed(ctx, asset.Name, def.Label, details.Message); err != nil {
				r.logger.Warn("notification failed", logging.Error(err))
			}
		}
		return state, runErr
	}

	final := result.Status
	if final != library.StepWaiting {
		final = library.StepSucceeded
	}
	patch := library.StepPatch{Status: &final, ErrorMessage: &empty}
	if result.Metadata != nil {
		patch.Metadata = result.Metadata
	}
	state, err := r.store.MergeStep(ctx, asset.ID, def.ID, patch)
	if err != nil {
		return nil, err
	}
	r.logger.Info("step finished", append(
		logging.Args(logging.ContextFields(ctx)...),
		logging.String("status", string(final)))...)
	if r.notifier != nil && final == library.StepSucceeded {
		if err := r.notifier.NotifyStepCompleted(ctx, asset.Name, def.Label); err != nil {
			r.logger.Warn("notification failed", logging.Error(err))
		}
	}
	return state, nil
}

func (r *Runner) unmetPrerequisite(def StepDefinition, states map[string]*library.StepState) string {
	for _, req := range def.Requires {
		state, ok := states[req]
		if !ok || state.Status != library.StepSucceeded {
			return req
		}
	}
	return ""
}
