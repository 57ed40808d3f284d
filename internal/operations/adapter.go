package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/notifications"
	"montage/internal/services"
)

// Trigger re-evaluates the pipeline for an asset without blocking the caller.
type Trigger interface {
	TriggerAsync(assetID string)
}

// Adapter drives external long-running jobs: it issues the provider create
// call, persists the opaque handle, and on later polls maps provider status
// into job state, materializing results as new assets on success.
type Adapter struct {
	store     *library.Store
	trigger   Trigger
	logger    *slog.Logger
	notifier  notifications.Service
	providers map[library.JobKind]Provider
}

// NewAdapter wires providers into the job store. trigger may be nil when no
// pipeline re-evaluation is wanted (tests).
func NewAdapter(store *library.Store, trigger Trigger, logger *slog.Logger, providers ...Provider) *Adapter {
	if logger == nil {
		logger = logging.NewNop()
	}
	byKind := make(map[library.JobKind]Provider, len(providers))
	for _, provider := range providers {
		byKind[provider.Kind()] = provider
	}
	return &Adapter{
		store:     store,
		trigger:   trigger,
		logger:    logger.With(logging.String(logging.FieldComponent, "operations")),
		providers: byKind,
	}
}

// SetNotifier installs the service notified on job terminal states.
// Notification failures are logged, never propagated.
func (a *Adapter) SetNotifier(notifier notifications.Service) {
	a.notifier = notifier
}

// Start validates params, dedupes against an in-flight job with the same
// input, and otherwise creates the provider operation and persists a running
// job holding its handle.
func (a *Adapter) Start(ctx context.Context, kind library.JobKind, assetID, projectID string, params map[string]any) (*library.Job, error) {
	provider, ok := a.providers[kind]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "operations", "start", fmt.Sprintf("no provider for job kind %q", kind), nil)
	}
	if err := provider.Validate(params); err != nil {
		return nil, services.Wrap(services.ErrValidation, "operations", "start", "invalid params", err)
	}

	paramsJSON, err := canonicalParams(params)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "operations", "start", "encode params", err)
	}

	existing, err := a.store.FindActiveJob(ctx, kind, assetID, paramsJSON)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		a.logger.Info("reusing in-flight job",
			logging.String(logging.FieldJobID, existing.ID),
			logging.String("kind", string(kind)))
		return existing, nil
	}

	job, err := a.store.CreateJob(ctx, library.NewJob{
		Kind:       kind,
		AssetID:    assetID,
		ProjectID:  projectID,
		ParamsJSON: paramsJSON,
	})
	if err != nil {
		return nil, err
	}
	ctx = services.WithJobID(ctx, job.ID)

	handle, err := provider.Start(ctx, params)
	if err != nil {
		return a.failJob(ctx, job.ID, services.Wrap(services.ErrProvider, "operations", "start", "provider create", err))
	}

	running := library.JobRunning
	updated, err := a.store.MergeJob(ctx, job.ID, library.JobPatch{
		Status:         &running,
		ProviderHandle: &handle,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("job started",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("kind", string(kind)),
		logging.String("handle", handle))
	return updated, nil
}

// Poll reconciles one job against its provider. Terminal jobs are returned
// unchanged; this makes Poll a pure read that is safe to call repeatedly.
func (a *Adapter) Poll(ctx context.Context, jobID string) (*library.Job, error) {
	job, err := a.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "operations", "poll", fmt.Sprintf("job %q", jobID), nil)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	provider, ok := a.providers[job.Kind]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "operations", "poll", fmt.Sprintf("no provider for job kind %q", job.Kind), nil)
	}
	if job.ProviderHandle == "" {
		return a.failJob(ctx, job.ID, services.Wrap(services.ErrProvider, "operations", "poll", "job has no provider handle", nil))
	}
	ctx = services.WithJobID(ctx, job.ID)

	status, err := provider.Poll(ctx, job.ProviderHandle)
	if err != nil {
		return a.failJob(ctx, job.ID, services.Wrap(services.ErrProvider, "operations", "poll", "provider status", err))
	}

	switch status.State {
	case StateFailed:
		message := status.Message
		if message == "" {
			message = "provider reported failure"
		}
		return a.failJob(ctx, job.ID, services.Wrap(services.ErrProvider, "operations", "poll", message, nil))
	case StateSucceeded:
		return a.materialize(ctx, job, provider, status)
	default:
		running := library.JobRunning
		patch := library.JobPatch{Status: &running}
		if status.Progress > 0 {
			patch.Progress = &status.Progress
		}
		return a.store.MergeJob(ctx, job.ID, patch)
	}
}

// materialize downloads the result, registers it as a generated asset, and
// writes the terminal success state. The job is re-checked immediately before
// the terminal write so interleaved polls cannot double-materialize; the
// narrow remaining window is accepted rather than adding a lock.
func (a *Adapter) materialize(ctx context.Context, job *library.Job, provider Provider, status Status) (*library.Job, error) {
	data, mimeType, err := provider.Fetch(ctx, status.Output)
	if err != nil {
		return a.failJob(ctx, job.ID, services.Wrap(services.ErrResultFetch, "operations", "poll", "", err))
	}

	asset, err := a.store.CreateAsset(ctx, library.NewAsset{
		Name:      resultAssetName(job),
		MIMEType:  mimeType,
		ProjectID: job.ProjectID,
		Source:    library.SourceGenerated,
		Data:      data,
	})
	if err != nil {
		return a.failJob(ctx, job.ID, services.Wrap(services.ErrResultFetch, "operations", "poll", "persist result asset", err))
	}

	fresh, err := a.store.GetJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if fresh != nil && fresh.Status.IsTerminal() {
		return fresh, nil
	}

	succeeded := library.JobSucceeded
	progress := 100.0
	updated, err := a.store.MergeJob(ctx, job.ID, library.JobPatch{
		Status:          &succeeded,
		Progress:        &progress,
		ResultAssetID:   &asset.ID,
		ResultAssetPath: &asset.StoragePath,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("job succeeded",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldAssetID, asset.ID))
	if a.notifier != nil {
		if err := a.notifier.NotifyJobCompleted(ctx, string(job.Kind), asset.ID); err != nil {
			a.logger.Warn("notification failed", logging.Error(err))
		}
	}
	if a.trigger != nil {
		a.trigger.TriggerAsync(asset.ID)
	}
	return updated, nil
}

func (a *Adapter) failJob(ctx context.Context, jobID string, cause error) (*library.Job, error) {
	details := services.Details(cause)
	failed := library.JobFailed
	job, err := a.store.MergeJob(ctx, jobID, library.JobPatch{
		Status:       &failed,
		ErrorMessage: &details.Message,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Warn("job failed",
		logging.String(logging.FieldJobID, jobID),
		logging.Error(cause))
	if a.notifier != nil && job != nil {
		if err := a.notifier.NotifyJobFailed(ctx, string(job.Kind), details.Message); err != nil {
			a.logger.Warn("notification failed", logging.Error(err))
		}
	}
	return job, nil
}

func resultAssetName(job *library.Job) string {
	var params map[string]any
	if job.ParamsJSON != "" {
		_ = json.Unmarshal([]byte(job.ParamsJSON), &params)
	}
	if prompt, ok := params["prompt"].(string); ok {
		prompt = strings.TrimSpace(prompt)
		if prompt != "" {
			// Truncate on rune boundaries so multi-byte prompts stay valid.
			if runes := []rune(prompt); len(runes) > 40 {
				prompt = string(runes[:40])
			}
			return prompt
		}
	}
	short := job.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s", job.Kind, short)
}

// canonicalParams encodes params deterministically (encoding/json sorts map
// keys) so equal inputs always produce the same stored string, which the
// dedupe query compares on.
func canonicalParams(params map[string]any) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
