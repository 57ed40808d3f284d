package videointel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Annotation features accepted by the annotate endpoint.
const (
	FeatureShotChangeDetection = "SHOT_CHANGE_DETECTION"
	FeatureLabelDetection      = "LABEL_DETECTION"
	FeatureAudioAnalysis       = "AUDIO_ANALYSIS"
)

// AnnotateRequest describes one annotation submission. Exactly one of
// InputURI or InputContent must be set.
type AnnotateRequest struct {
	InputURI     string
	InputContent []byte
	Features     []string
}

// Segment is one detected shot or labeled span.
type Segment struct {
	StartOffset string `json:"startTimeOffset"`
	EndOffset   string `json:"endTimeOffset"`
}

// LabelAnnotation is one detected entity with the segments it covers.
type LabelAnnotation struct {
	Entity struct {
		Description string `json:"description"`
	} `json:"entity"`
	Segments []struct {
		Segment    Segment `json:"segment"`
		Confidence float64 `json:"confidence"`
	} `json:"segments"`
}

// AudioResult carries loudness and music detection output.
type AudioResult struct {
	LoudnessLUFS  float64 `json:"loudnessLufs"`
	MusicDetected bool    `json:"musicDetected"`
	SpeechRatio   float64 `json:"speechRatio"`
}

// AnnotationResult is the per-video payload inside a completed operation.
type AnnotationResult struct {
	ShotAnnotations         []Segment         `json:"shotAnnotations"`
	SegmentLabelAnnotations []LabelAnnotation `json:"segmentLabelAnnotations"`
	AudioResult             *AudioResult      `json:"audioResult"`
}

// OperationError is the provider's terminal failure payload.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AnnotateResponse is the payload of a completed annotation operation.
type AnnotateResponse struct {
	AnnotationResults []AnnotationResult `json:"annotationResults"`
}

// OperationMetadata carries provider-reported progress.
type OperationMetadata struct {
	ProgressPercent float64 `json:"progressPercent"`
}

// Operation models the provider's long-running operation resource.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error"`
	Response *AnnotateResponse  `json:"response"`
	Metadata *OperationMetadata `json:"metadata"`
}

// Client talks to the video intelligence annotation API.
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

// New creates a video intelligence client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("videointel api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("videointel base url required")
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Annotate starts an annotation operation and returns its operation name.
func (c *Client) Annotate(ctx context.Context, req AnnotateRequest) (string, error) {
	if req.InputURI == "" && len(req.InputContent) == 0 {
		return "", errors.New("annotate requires input uri or content")
	}
	if len(req.Features) == 0 {
		return "", errors.New("annotate requires at least one feature")
	}

	body := map[string]any{"features": req.Features}
	if req.InputURI != "" {
		body["inputUri"] = req.InputURI
	} else {
		body["inputContent"] = base64.StdEncoding.EncodeToString(req.InputContent)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode annotate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/videos:annotate", bytes.NewReader(payload))
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
		return "", fmt.Errorf("annotate returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return "", fmt.Errorf("decode annotate response: %w", err)
	}
	if op.Name == "" {
		return "", errors.New("annotate response missing operation name")
	}
	return op.Name, nil
}

// GetOperation fetches the current state of an annotation operation.
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
