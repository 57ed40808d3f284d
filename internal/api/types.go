package api

import "time"

// AssetView is the wire representation of a library asset.
type AssetView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	MIMEType  string    `json:"mimeType,omitempty"`
	SizeBytes int64     `json:"sizeBytes"`
	Kind      string    `json:"kind"`
	ProjectID string    `json:"projectId,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StepView is the wire representation of one pipeline step for one asset.
type StepView struct {
	StepID    string         `json:"stepId"`
	Label     string         `json:"label"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// JobView is the wire representation of a provider job.
type JobView struct {
	ID              string    `json:"id"`
	Kind            string    `json:"kind"`
	Status          string    `json:"status"`
	AssetID         string    `json:"assetId,omitempty"`
	ProjectID       string    `json:"projectId,omitempty"`
	Params          string    `json:"params,omitempty"`
	ProviderHandle  string    `json:"providerHandle,omitempty"`
	Progress        float64   `json:"progress"`
	ResultAssetID   string    `json:"resultAssetId,omitempty"`
	ResultAssetPath string    `json:"resultAssetPath,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	DBPath       string `json:"dbPath"`
	LockFilePath string `json:"lockFilePath"`
	MediaDir     string `json:"mediaDir"`
	Assets       int    `json:"assets"`
	StepsWaiting int    `json:"stepsWaiting"`
	StepsFailed  int    `json:"stepsFailed"`
	JobsRunning  int    `json:"jobsRunning"`
	JobsFailed   int    `json:"jobsFailed"`
}

// AssetListResponse wraps asset listings.
type AssetListResponse struct {
	Assets []AssetView `json:"assets"`
}

// AssetResponse wraps a single asset.
type AssetResponse struct {
	Asset AssetView `json:"asset"`
}

// PipelineResponse is the full step view for one asset.
type PipelineResponse struct {
	AssetID string     `json:"assetId"`
	Steps   []StepView `json:"steps"`
}

// StepResponse wraps a single step result.
type StepResponse struct {
	Step StepView `json:"step"`
}

// JobListResponse wraps job listings.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobView `json:"job"`
}

// CreateAssetRequest is the POST /api/assets payload. Data is base64-encoded
// by encoding/json.
type CreateAssetRequest struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mimeType"`
	ProjectID string `json:"projectId"`
	Data      []byte `json:"data"`
	// Path registers an existing local file instead of uploading bytes.
	Path string `json:"path"`
}

// RunStepRequest carries optional caller parameters for a manual step run.
type RunStepRequest struct {
	Params map[string]any `json:"params"`
}

// StartJobRequest is the POST /api/jobs payload.
type StartJobRequest struct {
	Kind      string         `json:"kind"`
	AssetID   string         `json:"assetId"`
	ProjectID string         `json:"projectId"`
	Params    map[string]any `json:"params"`
}
