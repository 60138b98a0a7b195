package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sridip-de/yt-dlp-gui/internal/domain"
	"go.uber.org/zap"
)

// defaultNotifyTimeout bounds one notifier command
const defaultNotifyTimeout = 10 * time.Second

// NotificationService sends desktop notifications about finished downloads
type NotificationService struct {
	config  *domain.NotificationConfig
	logger  *zap.Logger
	timeout time.Duration

	// run executes the notifier command; replaced in tests
	run func(ctx context.Context, name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config:  config,
		logger:  logger,
		timeout: defaultNotifyTimeout,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var name string
	var args []string
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %s with title %s`, appleScriptString(message), appleScriptString(title))
		name, args = "osascript", []string{"-e", script}
	case "notify-send":
		name, args = "notify-send", []string{title, message}
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.run(ctx, name, args...); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%s timed out after %s: %w", name, n.timeout, ctx.Err())
		}
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyDownloadCompleted sends notification when a download completes
func (n *NotificationService) NotifyDownloadCompleted(url string) {
	n.Send("Download Completed", fmt.Sprintf("Success: %s", truncateString(url, 50)))
}

// NotifyDownloadFailed sends notification when a download fails
func (n *NotificationService) NotifyDownloadFailed(url string, err error) {
	message := fmt.Sprintf("Failed: %s", truncateString(url, 50))
	if err != nil {
		message += "\n" + truncateString(err.Error(), 120)
	}
	n.Send("Download Failed", message)
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
