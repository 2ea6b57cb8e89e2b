package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"metamender/internal/config"
	"metamender/internal/runlog"
)

const (
	userAgent      = "MetaMender/1.0"
	defaultNtfyURL = "https://ntfy.sh/"
)

// Service defines the notification surface used by the run command.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary runlog.Summary) error
	NotifyRunFailed(ctx context.Context, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// A bare topic name is published to ntfy.sh.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if !strings.Contains(topic, "://") {
		topic = defaultNtfyURL + strings.TrimLeft(topic, "/")
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

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary runlog.Summary) error {
	duration := summary.Duration().Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Updated %d, skipped %d, failed %d of %d items in %s",
		summary.Updated, summary.Skipped, summary.Failed, summary.Scanned, duration)
	fmt.Fprintf(&b, "\nTokens: %d (≈$%.4f)", summary.Tokens, summary.Cost)
	if reasons := runlog.FormatCounts(summary.SkippedByReason); reasons != "" {
		b.WriteString("\nSkipped: " + reasons)
	}
	if kinds := runlog.FormatCounts(summary.FailedByKind); kinds != "" {
		b.WriteString("\nFailed: " + kinds)
	}

	data := payload{
		title:   "MetaMender - Run Complete",
		message: b.String(),
		tags:    []string{"metamender", "run", "completed"},
	}
	switch {
	case summary.Interrupted:
		data.title = "MetaMender - Run Interrupted"
		data.tags = []string{"metamender", "run", "interrupted"}
	case summary.Failed > 0:
		data.title = "MetaMender - Run Complete (with errors)"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunFailed(ctx context.Context, err error) error {
	message := "unknown"
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "MetaMender - Run Failed",
		message:  "❌ Run aborted: " + message,
		tags:     []string{"metamender", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "MetaMender - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"metamender", "test"},
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

func (noopService) NotifyRunCompleted(context.Context, runlog.Summary) error { return nil }
func (noopService) NotifyRunFailed(context.Context, error) error             { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
