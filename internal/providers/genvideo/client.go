package genvideo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GenerationRequest describes one text-to-video submission.
type GenerationRequest struct {
	Prompt          string
	DurationSeconds int
	AspectRatio     string
}

// Video is the downloadable result inside a completed operation.
type Video struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

// OperationError is the provider's terminal failure payload.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GenerationResponse is the payload of a completed generation operation.
type GenerationResponse struct {
	Video *Video `json:"video"`
}

// OperationMetadata carries provider-reported progress.
type OperationMetadata struct {
	ProgressPercent float64 `json:"progressPercent"`
}

// Operation models the provider's long-running generation resource.
type Operation struct {
	Name     string              `json:"name"`
	Done     bool                `json:"done"`
	Error    *OperationError     `json:"error"`
	Response *GenerationResponse `json:"response"`
	Metadata *OperationMetadata  `json:"metadata"`
}

// Client talks to the video generation API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a video generation client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("genvideo api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("genvideo base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// StartGeneration submits a generation request and returns its operation name.
func (c *Client) StartGeneration(ctx context.Context, req GenerationRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	body := map[string]any{"prompt": prompt}
	if req.DurationSeconds > 0 {
		body["durationSeconds"] = req.DurationSeconds
	}
	if req.AspectRatio != "" {
		body["aspectRatio"] = req.AspectRatio
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/video:generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return "", fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation create returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if op.Name == "" {
		return "", errors.New("generation response missing operation name")
	}
	return op.Name, nil
}

// GetOperation fetches the current state of a generation operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("operation name must not be empty")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("operation fetch returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	return &op, nil
}

// Download fetches a completed video by its result URI. Relative URIs are
// resolved against the client's base URL.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, "", errors.New("download uri must not be empty")
	}
	if strings.HasPrefix(uri, "/") {
		uri = c.baseURL + uri
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, "", fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download returned %d (latency=%v)", resp.StatusCode, latency)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read download body: %w", err)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return data, mimeType, nil
}
