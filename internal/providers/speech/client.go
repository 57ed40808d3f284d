package speech

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

// RecognizeRequest describes one transcription submission. Exactly one of
// AudioURI or AudioContent must be set.
type RecognizeRequest struct {
	AudioURI     string
	AudioContent []byte
	LanguageCode string
}

// WordInfo is one recognized word with timing.
type WordInfo struct {
	Word      string `json:"word"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Alternative is one transcription hypothesis.
type Alternative struct {
	Transcript string     `json:"transcript"`
	Confidence float64    `json:"confidence"`
	Words      []WordInfo `json:"words"`
}

// RecognitionResult covers one contiguous audio segment.
type RecognitionResult struct {
	Alternatives []Alternative `json:"alternatives"`
}

// OperationError is the provider's terminal failure payload.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RecognizeResponse is the payload of a completed recognition operation.
type RecognizeResponse struct {
	Results []RecognitionResult `json:"results"`
}

// OperationMetadata carries provider-reported progress.
type OperationMetadata struct {
	ProgressPercent float64 `json:"progressPercent"`
}

// Operation models the provider's long-running recognition operation.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error"`
	Response *RecognizeResponse `json:"response"`
	Metadata *OperationMetadata `json:"metadata"`
}

// Client talks to the speech-to-text API.
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

// New creates a speech client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("speech api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("speech base url required")
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

// StartRecognition starts a long-running transcription and returns its
// operation name.
func (c *Client) StartRecognition(ctx context.Context, req RecognizeRequest) (string, error) {
	if req.AudioURI == "" && len(req.AudioContent) == 0 {
		return "", errors.New("recognize requires audio uri or content")
	}

	audio := map[string]any{}
	if req.AudioURI != "" {
		audio["uri"] = req.AudioURI
	} else {
		audio["content"] = base64.StdEncoding.EncodeToString(req.AudioContent)
	}
	language := req.LanguageCode
	if language == "" {
		language = "en-US"
	}
	payload, err := json.Marshal(map[string]any{
		"config": map[string]any{
			"languageCode":          language,
			"enableWordTimeOffsets": true,
		},
		"audio": audio,
	})
	if err != nil {
		return "", fmt.Errorf("encode recognize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/speech:longrunningrecognize", bytes.NewReader(payload))
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
		return "", fmt.Errorf("recognize returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}
	if op.Name == "" {
		return "", errors.New("recognize response missing operation name")
	}
	return op.Name, nil
}

// GetOperation fetches the current state of a recognition operation.
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
