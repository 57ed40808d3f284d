package genvideo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"montage/internal/library"
	"montage/internal/operations"
)

// Provider adapts the generation client to the job adapter contract.
type Provider struct {
	client *Client
}

var _ operations.Provider = (*Provider)(nil)

// NewProvider wraps a generation client.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

// Kind identifies the job family this provider serves.
func (p *Provider) Kind() library.JobKind {
	return library.JobGenerate
}

// Validate rejects submissions without a usable prompt.
func (p *Provider) Validate(params map[string]any) error {
	prompt, _ := params["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is required")
	}
	return nil
}

// Start submits the generation request and returns the operation name.
func (p *Provider) Start(ctx context.Context, params map[string]any) (string, error) {
	req := GenerationRequest{}
	req.Prompt, _ = params["prompt"].(string)
	if duration, ok := params["duration_seconds"].(float64); ok {
		req.DurationSeconds = int(duration)
	}
	req.AspectRatio, _ = params["aspect_ratio"].(string)
	return p.client.StartGeneration(ctx, req)
}

// Poll maps the operation resource onto the adapter's status enum.
func (p *Provider) Poll(ctx context.Context, handle string) (operations.Status, error) {
	op, err := p.client.GetOperation(ctx, handle)
	if err != nil {
		return operations.Status{}, err
	}
	if !op.Done {
		status := operations.Status{State: operations.StateRunning}
		if op.Metadata != nil {
			status.Progress = op.Metadata.ProgressPercent
		}
		return status, nil
	}
	if op.Error != nil {
		return operations.Status{State: operations.StateFailed, Message: op.Error.Message}, nil
	}
	if op.Response == nil || op.Response.Video == nil || op.Response.Video.URI == "" {
		return operations.Status{}, fmt.Errorf("operation %s completed without a video", handle)
	}
	return operations.Status{
		State:    operations.StateSucceeded,
		Progress: 100,
		Output: map[string]any{
			"uri":       op.Response.Video.URI,
			"mime_type": op.Response.Video.MimeType,
		},
	}, nil
}

// Fetch downloads the completed video.
func (p *Provider) Fetch(ctx context.Context, output map[string]any) ([]byte, string, error) {
	uri, _ := output["uri"].(string)
	data, mimeType, err := p.client.Download(ctx, uri)
	if err != nil {
		return nil, "", err
	}
	if declared, _ := output["mime_type"].(string); declared != "" {
		mimeType = declared
	}
	return data, mimeType, nil
}
