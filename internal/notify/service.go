package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"campus-notify-go/internal/bus"
	"campus-notify-go/internal/models"
	"campus-notify-go/internal/protocol"
	"campus-notify-go/internal/store"
)

// LivenessChecker reports whether a recipient currently holds any live
// push session, letting the service skip offline fallbacks for online
// recipients.
type LivenessChecker interface {
	HasSessions(recipientID int) bool
}

// PushSender is the offline fallback delivery path (Web Push). Best
// effort only.
type PushSender interface {
	Send(ctx context.Context, recipientID int, n models.Notification)
}

// Service is the boundary producers call. Publish guarantees the record
// is durably created before any push attempt; push failure never loses
// the record because the store is the catch-up backstop.
type Service struct {
	store    store.NotificationStore
	bus      bus.Bus
	log      zerolog.Logger
	liveness LivenessChecker
	push     PushSender
}

// ServiceOption configures optional delivery paths.
type ServiceOption func(*Service)

// WithOfflinePush enables Web Push delivery for recipients with no live
// session.
func WithOfflinePush(liveness LivenessChecker, push PushSender) ServiceOption {
	return func(s *Service) {
		s.liveness = liveness
		s.push = push
	}
}

func NewService(st store.NotificationStore, b bus.Bus, log zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store: st,
		bus:   b,
		log:   log.With().Str("component", "notify").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish durably creates the notification, then pushes it best effort.
func (s *Service) Publish(ctx context.Context, recipientID int, category models.Category, title, body string, relatedID int) (models.Notification, error) {
	if !category.Valid() {
		return models.Notification{}, fmt.Errorf("unknown notification category %q", string(category))
	}

	n, err := s.store.Create(ctx, recipientID, category, title, body, relatedID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to store notification: %w", err)
	}

	publishedCounter.Inc()

	if err := s.bus.Publish(ctx, recipientID, protocol.NewNotification(n)); err != nil {
		// The record is durable; clients recover it via catch-up.
		s.log.Warn().Err(err).Int("id", n.ID).Msg("push publish failed, record stored")
	}

	if s.push != nil && (s.liveness == nil || !s.liveness.HasSessions(recipientID)) {
		s.push.Send(ctx, recipientID, n)
	}

	return n, nil
}

// MarkRead flips one record and, only when an actual transition occurred,
// broadcasts the confirmation so the recipient's other sessions converge.
func (s *Service) MarkRead(ctx context.Context, recipientID, notificationID int) (bool, error) {
	changed, err := s.store.MarkRead(ctx, recipientID, notificationID)
	if err != nil {
		return false, err
	}

	if changed {
		if err := s.bus.Publish(ctx, recipientID, protocol.NotificationRead(notificationID)); err != nil {
			s.log.Warn().Err(err).Int("id", notificationID).Msg("read confirmation publish failed")
		}
	}
	return changed, nil
}

// MarkAllRead flips every unread record and broadcasts the full-state
// overwrite. The event is sent even when nothing transitioned: it is
// cheap and corrects any counter drift on listening sessions.
func (s *Service) MarkAllRead(ctx context.Context, recipientID int) (int, error) {
	count, err := s.store.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if err := s.bus.Publish(ctx, recipientID, protocol.AllRead()); err != nil {
		s.log.Warn().Err(err).Int("recipient_id", recipientID).Msg("all-read publish failed")
	}
	return count, nil
}

func (s *Service) List(ctx context.Context, recipientID, cursor, limit int) ([]models.Notification, int, error) {
	return s.store.ListByRecipient(ctx, recipientID, cursor, limit)
}

func (s *Service) UnreadCount(ctx context.Context, recipientID int) (int, error) {
	return s.store.UnreadCount(ctx, recipientID)
}

// BroadcastAnnouncement fans one announcement out to many recipients and
// returns the number of records created.
func (s *Service) BroadcastAnnouncement(ctx context.Context, recipientIDs []int, title, body string) (int, error) {
	count := 0
	for _, id := range recipientIDs {
		if _, err := s.Publish(ctx, id, models.CategoryAnnouncement, title, body, 0); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
