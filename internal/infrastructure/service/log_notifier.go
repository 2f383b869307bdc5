package service

import (
	"context"
	"log/slog"

	"github.com/alem-hub/explorer-points/internal/domain/notification"
)

// LogNotifier writes notifications to the log instead of delivering them.
// It stands in for the parent app until a real delivery channel is wired.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

// Notify implements notification.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, learnerID string, msg notification.Message) error {
	n.logger.InfoContext(ctx, "parent notification",
		"learner_id", learnerID,
		"type", msg.Type,
		"title", msg.Title,
		"body", msg.Body,
	)
	return nil
}
