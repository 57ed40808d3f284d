package vfx

import (
	"context"
	"errors"
	"fmt"

	"montage/internal/library"
	"montage/internal/operations"
)

// Provider adapts the effects client to the job adapter contract.
type Provider struct {
	client *Client
}

var _ operations.Provider = (*Provider)(nil)

// NewProvider wraps an effects client.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

// Kind identifies the job family this provider serves.
func (p *Provider) Kind() library.JobKind {
	return library.JobEffect
}

// Validate rejects submissions without model input.
func (p *Provider) Validate(params map[string]any) error {
	input, _ := params["input"].(map[string]any)
	if len(input) == 0 {
		return errors.New("input is required")
	}
	return nil
}

// Start submits the prediction and returns its id.
func (p *Provider) Start(ctx context.Context, params map[string]any) (string, error) {
	input, _ := params["input"].(map[string]any)
	version, _ := params["version"].(string)
	prediction, err := p.client.CreatePrediction(ctx, PredictionRequest{Version: version, Input: input})
	if err != nil {
		return "", err
	}
	return prediction.ID, nil
}

// Poll maps the prediction resource onto the adapter's status enum.
func (p *Provider) Poll(ctx context.Context, handle string) (operations.Status, error) {
	prediction, err := p.client.GetPrediction(ctx, handle)
	if err != nil {
		return operations.Status{}, err
	}
	switch prediction.Status {
	case StatusSucceeded:
		url := prediction.OutputURL()
		if url == "" {
			return operations.Status{}, fmt.Errorf("prediction %s succeeded without output", handle)
		}
		return operations.Status{
			State:    operations.StateSucceeded,
			Progress: 100,
			Output:   map[string]any{"url": url},
		}, nil
	case StatusFailed, StatusCanceled:
		message := prediction.Error
		if message == "" {
			message = "prediction " + prediction.Status
		}
		return operations.Status{State: operations.StateFailed, Message: message}, nil
	default:
		return operations.Status{State: operations.StateRunning}, nil
	}
}

// Fetch downloads the prediction output.
func (p *Provider) Fetch(ctx context.Context, output map[string]any) ([]byte, string, error) {
	url, _ := output["url"].(string)
	return p.client.Download(ctx, url)
}
