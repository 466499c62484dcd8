package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"rebind/internal/config"
)

const userAgent = "Rebind/0.1.0"

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyConversionStarted(ctx context.Context, sourcePath string) error
	NotifyConversionCompleted(ctx context.Context, sourcePath, outputPath string, pages int) error
	NotifyConversionFailed(ctx context.Context, sourcePath, reason string) error
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
}

func (n *ntfyService) NotifyConversionStarted(ctx context.Context, sourcePath string) error {
	return n.send(ctx, payload{
		title:   "Rebind - Conversion Started",
		message: fmt.Sprintf("Converting %s", filepath.Base(sourcePath)),
		tags:    []string{"rebind", "convert", "started"},
	})
}

func (n *ntfyService) NotifyConversionCompleted(ctx context.Context, sourcePath, outputPath string, pages int) error {
	return n.send(ctx, payload{
		title:   "Rebind - Conversion Complete",
		message: fmt.Sprintf("%s -> %s (%d pages)", filepath.Base(sourcePath), filepath.Base(outputPath), pages),
		tags:    []string{"rebind", "convert", "completed"},
	})
}

func (n *ntfyService) NotifyConversionFailed(ctx context.Context, sourcePath, reason string) error {
	return n.send(ctx, payload{
		title:    "Rebind - Conversion Failed",
		message:  fmt.Sprintf("%s failed: %s", filepath.Base(sourcePath), reason),
		tags:     []string{"rebind", "convert", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "Rebind - Test",
		message: "Notifications are configured correctly",
		tags:    []string{"rebind", "test"},
	})
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
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyConversionStarted(context.Context, string) error               { return nil }
func (noopService) NotifyConversionCompleted(context.Context, string, string, int) error { return nil }
func (noopService) NotifyConversionFailed(context.Context, string, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
