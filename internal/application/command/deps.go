// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/notification"
)

// IDGenerator produces identifiers for new records.
type IDGenerator interface {
	NewID() string
}

// NotificationSender hands a parent notification to the delivery layer without
// waiting for it. delivered runs after a successful send and may be nil.
type NotificationSender interface {
	Send(learnerID string, msg notification.Message, delivered func(ctx context.Context) error)
}

// Clock returns the current time. Handlers use time.Now when nil.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// noopSender drops notifications. Used when no sender is wired.
type noopSender struct{}

func (noopSender) Send(string, notification.Message, func(context.Context) error) {}
