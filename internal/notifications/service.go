package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"montage/internal/config"
)

const userAgent = "Montage/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyAssetRegistered(ctx context.Context, name, kind string) error
	NotifyStepCompleted(ctx context.Context, assetName, stepLabel string) error
	NotifyStepFailed(ctx context.Context, assetName, stepLabel, message string) error
	NotifyJobCompleted(ctx context.Context, kind, resultAssetID string) error
	NotifyJobFailed(ctx context.Context, kind, message string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		steps:    cfg.Notifications.Steps,
		jobs:     cfg.Notifications.Jobs,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	steps    bool
	jobs     bool
	errors   bool
}

func (n *ntfyService) NotifyAssetRegistered(ctx context.Context, name, kind string) error {
	if !n.steps {
		return nil
	}
	data := payload{
		title:   "Montage - Asset Added",
		message: fmt.Sprintf("New %s asset: %s", kind, strings.TrimSpace(name)),
		tags:    []string{"montage", "asset", "added"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStepCompleted(ctx context.Context, assetName, stepLabel string) error {
	if !n.steps {
		return nil
	}
	data := payload{
		title:   "Montage - Step Complete",
		message: fmt.Sprintf("%s finished for %s", strings.TrimSpace(stepLabel), strings.TrimSpace(assetName)),
		tags:    []string{"montage", "step", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStepFailed(ctx context.Context, assetName, stepLabel, message string) error {
	if !n.steps && !n.errors {
		return nil
	}
	data := payload{
		title:    "Montage - Step Failed",
		message:  fmt.Sprintf("%s failed for %s: %s", strings.TrimSpace(stepLabel), strings.TrimSpace(assetName), strings.TrimSpace(message)),
		tags:     []string{"montage", "step", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, kind, resultAssetID string) error {
	if !n.jobs {
		return nil
	}
	data := payload{
		title:   "Montage - Job Complete",
		message: fmt.Sprintf("%s job finished, new asset %s", kind, resultAssetID),
		tags:    []string{"montage", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, kind, message string) error {
	if !n.jobs && !n.errors {
		return nil
	}
	data := payload{
		title:    "Montage - Job Failed",
		message:  fmt.Sprintf("%s job failed: %s", kind, strings.TrimSpace(message)),
		tags:     []string{"montage", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Montage - Error",
		message:  builder.String(),
		tags:     []string{"montage", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Montage - Test",
		message:  "Notification system test",
		tags:     []string{"montage", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyAssetRegistered(context.Context, string, string) error { return nil }
func (noopService) NotifyStepCompleted(context.Context, string, string) error   { return nil }
func (noopService) NotifyStepFailed(context.Context, string, string, string) error {
	return nil
}
func (noopService) NotifyJobCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
