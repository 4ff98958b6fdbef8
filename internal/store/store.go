package store

import (
	"context"

	"campus-notify-go/internal/models"
)

// NotificationStore is the durable, append-only notification record store.
// It is the single source of truth: push delivery is best effort and the
// store is the catch-up backstop. All mutations are conditional and
// idempotent so concurrent mark-read and mark-all-read commute.
type NotificationStore interface {
	// Create appends a new notification record and assigns its id.
	Create(ctx context.Context, recipientID int, category models.Category, title, body string, relatedID int) (models.Notification, error)

	// ListByRecipient returns one page of the recipient's notifications,
	// newest first. cursor is the id to continue from (0 = start); the
	// returned nextCursor is 0 when the page is the last one.
	ListByRecipient(ctx context.Context, recipientID, cursor, limit int) ([]models.Notification, int, error)

	// UnreadCount returns the authoritative unread count.
	UnreadCount(ctx context.Context, recipientID int) (int, error)

	// MarkRead flips one notification to read. Idempotent: returns true
	// only when an actual unread-to-read transition occurred.
	MarkRead(ctx context.Context, recipientID, notificationID int) (bool, error)

	// MarkAllRead flips every unread notification for the recipient and
	// returns the number of records transitioned.
	MarkAllRead(ctx context.Context, recipientID int) (int, error)
}

// PushSubscriptionStore persists browser Web Push subscriptions used for
// best-effort delivery to recipients with no live session.
type PushSubscriptionStore interface {
	SavePushSubscription(ctx context.Context, recipientID int, endpoint, p256dh, auth string) error
	GetPushSubscriptions(ctx context.Context, recipientID int) ([]models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}
