package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"montage/internal/api"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Client talks to a running montaged instance over its HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes client construction.
type Option func(*Client)

// WithHTTPClient overrides the transport used for API calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New returns a client for the daemon listening at bind, which may be a
// host:port pair or a full http URL.
func New(bind string, opts ...Option) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("daemon address is required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	parsed, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}

	client := &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Status fetches the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAssets returns the asset library, optionally filtered by project.
func (c *Client) ListAssets(ctx context.Context, projectID string) ([]api.AssetView, error) {
	path := "/api/assets"
	if projectID != "" {
		path += "?project=" + url.QueryEscape(projectID)
	}
	var out api.AssetListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

// GetAsset fetches a single asset by id.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*api.AssetView, error) {
	var out api.AssetResponse
	if err := c.do(ctx, http.MethodGet, "/api/assets/"+url.PathEscape(assetID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Asset, nil
}

// CreateAsset uploads bytes or registers a local path as a new asset.
func (c *Client) CreateAsset(ctx context.Context, req api.CreateAssetRequest) (*api.AssetView, error) {
	var out api.AssetResponse
	if err := c.do(ctx, http.MethodPost, "/api/assets", req, &out); err != nil {
		return nil, err
	}
	return &out.Asset, nil
}

// Pipeline returns the per-step pipeline state for an asset.
func (c *Client) Pipeline(ctx context.Context, assetID string) (*api.PipelineResponse, error) {
	var out api.PipelineResponse
	if err := c.do(ctx, http.MethodGet, "/api/assets/"+url.PathEscape(assetID)+"/pipeline", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunStep submits a step for an asset and returns the resulting step state.
func (c *Client) RunStep(ctx context.Context, assetID, stepID string, params map[string]any) (*api.StepView, error) {
	var out api.StepResponse
	path := "/api/assets/" + url.PathEscape(assetID) + "/pipeline/" + url.PathEscape(stepID)
	if err := c.do(ctx, http.MethodPost, path, api.RunStepRequest{Params: params}, &out); err != nil {
		return nil, err
	}
	return &out.Step, nil
}

// StartJob submits a generative job.
func (c *Client) StartJob(ctx context.Context, req api.StartJobRequest) (*api.JobView, error) {
	var out api.JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// GetJob fetches a job by id. The daemon polls the provider on every read,
// so repeated calls advance a running job toward a terminal status.
func (c *Client) GetJob(ctx context.Context, jobID string) (*api.JobView, error) {
	var out api.JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// ListJobs returns jobs, optionally filtered by status and owner.
func (c *Client) ListJobs(ctx context.Context, status, assetID, projectID string) ([]api.JobView, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if assetID != "" {
		query.Set("asset", assetID)
	}
	if projectID != "" {
		query.Set("project", projectID)
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// WaitForJob polls a job until it reaches a terminal status or ctx is done.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*api.JobView, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status == "succeeded" || job.Status == "failed" {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionRefused(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("%s %s after %s: %w", method, path, time.Since(started).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}

func isConnectionRefused(err error) bool {
	return err != nil && strings.Contains(err.Error(), "connection refused")
}
