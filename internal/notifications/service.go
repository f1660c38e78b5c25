package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cardcast/internal/config"
)

const userAgent = "Cardcast-Go/0.1.0"

// Event names a notification-worthy milestone.
type Event string

const (
	EventExportCompleted Event = "export_completed"
	EventExportFailed    Event = "export_failed"
	EventTest            Event = "test"
)

// Payload carries event fields. Recognized keys depend on the event.
type Payload map[string]any

// Service defines the notification surface exposed to export code.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventExportCompleted:
		if !n.completed {
			return message{}, false
		}
		title := payload.text("title", "Untitled card")
		body := fmt.Sprintf("🎉 Card ready: %s", title)
		if frames := payload.text("frames", ""); frames != "" {
			body = fmt.Sprintf("%s (%s frames, %s)", body, frames, payload.text("duration", "?"))
		}
		if url := payload.text("url", ""); url != "" {
			body = fmt.Sprintf("%s\n%s", body, url)
		}
		return message{
			title: "Cardcast - Export Complete",
			body:  body,
			tags:  []string{"cardcast", "export", "completed"},
			click: payload.text("download", ""),
		}, true
	case EventExportFailed:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Export failed")
		if title := payload.text("title", ""); title != "" {
			builder.WriteString(": ")
			builder.WriteString(title)
		}
		builder.WriteString("\n")
		builder.WriteString(payload.text("error", "unknown"))
		return message{
			title:    "Cardcast - Export Failed",
			body:     builder.String(),
			tags:     []string{"cardcast", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Cardcast - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"cardcast", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key, fallback string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case error:
		s = v.Error()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}
	if msg.click != "" {
		req.Header.Set("Click", msg.click)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
