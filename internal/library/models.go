package library

import (
	"strings"
	"time"
)

// Kind classifies an asset's media type.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindOther Kind = "other"
)

var allKinds = []Kind{KindVideo, KindAudio, KindImage, KindOther}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// KindFromMIME maps a MIME type onto an asset kind.
func KindFromMIME(mimeType string) Kind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return KindAudio
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	default:
		return KindOther
	}
}

// Source records how an asset entered the library.
type Source string

const (
	SourceUpload    Source = "upload"
	SourceGenerated Source = "generated"
)

// Asset represents a media file tracked by the library.
type Asset struct {
	ID          string
	Name        string
	StoragePath string
	MIMEType    string
	SizeBytes   int64
	Kind        Kind
	ProjectID   string
	Source      Source
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StepStatus is the lifecycle of one pipeline step for one asset.
type StepStatus string

const (
	StepIdle      StepStatus = "idle"
	StepRunning   StepStatus = "running"
	StepWaiting   StepStatus = "waiting"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

var allStepStatuses = []StepStatus{StepIdle, StepRunning, StepWaiting, StepSucceeded, StepFailed}

// ParseStepStatus converts a string into a known StepStatus.
func ParseStepStatus(value string) (StepStatus, bool) {
	normalized := StepStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStepStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status absorbs further transitions.
func (s StepStatus) IsTerminal() bool {
	return s == StepSucceeded || s == StepFailed
}

// InFlight reports whether work for the step is currently running locally or
// waiting on a provider-side operation.
func (s StepStatus) InFlight() bool {
	return s == StepRunning || s == StepWaiting
}

// StepState is the persisted state of one step for one asset.
type StepState struct {
	AssetID      string
	StepID       string
	Label        string
	Status       StepStatus
	Metadata     map[string]any
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobKind identifies the provider family behind a job.
type JobKind string

const (
	JobGenerate JobKind = "generate"
	JobEffect   JobKind = "effect"
)

// ParseJobKind converts a string into a known JobKind.
func ParseJobKind(value string) (JobKind, bool) {
	normalized := JobKind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case JobGenerate, JobEffect:
		return normalized, true
	}
	return "", false
}

// JobStatus is the lifecycle of a generative or effect job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

var allJobStatuses = []JobStatus{JobPending, JobRunning, JobSucceeded, JobFailed}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allJobStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the job status absorbs further polls.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job represents one tracked invocation of a generative or effect provider.
type Job struct {
	ID              string
	Kind            JobKind
	Status          JobStatus
	AssetID         string
	ProjectID       string
	ParamsJSON      string
	ProviderHandle  string
	Progress        float64
	ResultAssetID   string
	ResultAssetPath string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// JobFilter narrows a job listing. Zero-value fields are ignored.
type JobFilter struct {
	Status    JobStatus
	AssetID   string
	ProjectID string
}

// StepPatch is a partial update of one step's fields. Nil fields are left
// untouched so concurrent writers of sibling fields never clobber each other.
type StepPatch struct {
	Status       *StepStatus
	Label        *string
	Metadata     map[string]any
	ErrorMessage *string
}

// JobPatch is a partial update of one job's fields with the same semantics as
// StepPatch.
type JobPatch struct {
	Status          *JobStatus
	ProviderHandle  *string
	Progress        *float64
	ResultAssetID   *string
	ResultAssetPath *string
	ErrorMessage    *string
}

// HealthSummary aggregates library counts for diagnostic output.
type HealthSummary struct {
	Assets       int
	StepsWaiting int
	StepsFailed  int
	JobsRunning  int
	JobsFailed   int
}
