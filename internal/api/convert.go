package api

import "montage/internal/library"

// FromAsset converts a library asset into its wire form.
func FromAsset(asset *library.Asset) AssetView {
	return AssetView{
		ID:        asset.ID,
		Name:      asset.Name,
		Path:      asset.StoragePath,
		MIMEType:  asset.MIMEType,
		SizeBytes: asset.SizeBytes,
		Kind:      string(asset.Kind),
		ProjectID: asset.ProjectID,
		Source:    string(asset.Source),
		CreatedAt: asset.CreatedAt,
		UpdatedAt: asset.UpdatedAt,
	}
}

// FromAssets converts a slice of library assets.
func FromAssets(assets []*library.Asset) []AssetView {
	views := make([]AssetView, 0, len(assets))
	for _, asset := range assets {
		views = append(views, FromAsset(asset))
	}
	return views
}

// FromStepState converts a persisted step row into its wire form.
func FromStepState(state *library.StepState) StepView {
	return StepView{
		StepID:    state.StepID,
		Label:     state.Label,
		Status:    string(state.Status),
		Metadata:  state.Metadata,
		Error:     state.ErrorMessage,
		UpdatedAt: state.UpdatedAt,
	}
}

// FromStepStates converts a slice of step rows.
func FromStepStates(states []*library.StepState) []StepView {
	views := make([]StepView, 0, len(states))
	for _, state := range states {
		views = append(views, FromStepState(state))
	}
	return views
}

// FromJob converts a library job into its wire form.
func FromJob(job *library.Job) JobView {
	return JobView{
		ID:              job.ID,
		Kind:            string(job.Kind),
		Status:          string(job.Status),
		AssetID:         job.AssetID,
		ProjectID:       job.ProjectID,
		Params:          job.ParamsJSON,
		ProviderHandle:  job.ProviderHandle,
		Progress:        job.Progress,
		ResultAssetID:   job.ResultAssetID,
		ResultAssetPath: job.ResultAssetPath,
		Error:           job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// FromJobs converts a slice of library jobs.
func FromJobs(jobs []*library.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job))
	}
	return views
}
