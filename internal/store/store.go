package store

import (
	"context"

	"github.com/davitran/hr-notify/internal/model"
)

// Store is the local persistence interface for the notification mirror.
// The mirror is not authoritative: it is a best-effort local copy of the
// merged feed used for offline reads and for detecting which records of
// a fetched page were never seen before.
type Store interface {
	// UpsertNotifications inserts or replaces a batch of notifications
	// and returns how many of them were not previously mirrored.
	UpsertNotifications(ctx context.Context, items []model.Notification) (int, error)

	// GetNotifications returns the newest mirrored notifications,
	// ordered by timestamp descending.
	GetNotifications(ctx context.Context, limit int) ([]model.Notification, error)

	// MarkNotificationRead marks every mirrored record with the given
	// source id as read. The id is not origin-qualified because the
	// caller does not know the owning source.
	MarkNotificationRead(ctx context.Context, id string) error

	// MarkAllNotificationsRead marks every mirrored record as read.
	MarkAllNotificationsRead(ctx context.Context) error

	// DeleteNotification removes every mirrored record with the given
	// source id.
	DeleteNotification(ctx context.Context, id string) error

	// UnreadCount returns the number of unread mirrored records.
	UnreadCount(ctx context.Context) (int, error)
}
