package preflight

import (
	"context"
	"strings"

	"cardcast/internal/config"
)

// CheckGeneratorFromConfig evaluates generator status from config and connectivity.
func CheckGeneratorFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Generator"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Generator.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	return CheckGenerator(ctx, cfg.Generator)
}

// NotificationsStatus reports whether ntfy delivery is configured. It never
// contacts the topic; sending a test message is an explicit CLI action.
func NotificationsStatus(cfg *config.Config) Result {
	const name = "Notifications"
	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	var events []string
	if cfg.Notifications.Completed {
		events = append(events, "completed")
	}
	if cfg.Notifications.Errors {
		events = append(events, "errors")
	}
	if len(events) == 0 {
		return Result{Name: name, Passed: true, Detail: "Topic set, all events muted"}
	}
	return Result{Name: name, Passed: true, Detail: "ntfy (" + strings.Join(events, ", ") + ")"}
}
