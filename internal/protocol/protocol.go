package protocol

import (
	"encoding/json"
	"fmt"

	"campus-notify-go/internal/models"
)

// Kind tags a push event on the wire.
type Kind string

const (
	KindNewNotification  Kind = "new_notification"
	KindNotificationRead Kind = "notification_read"
	KindAllRead          Kind = "all_read"
	KindUnreadCount      Kind = "unread_count"
)

// Event is one message on the push channel. Exactly one payload field is
// meaningful, selected by Kind. The transport gives no ordering guarantee:
// consumers must tolerate a notification_read arriving before the
// new_notification it refers to.
type Event struct {
	Kind           Kind                 `json:"kind"`
	Notification   *models.Notification `json:"notification,omitempty"`
	NotificationID int                  `json:"notification_id,omitempty"`
	Count          int                  `json:"count,omitempty"`
}

// ProtocolError marks a malformed or unexpected wire message. Receivers
// drop the message and log; it must never mutate local state.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// ConnectionError marks a push channel that could not be established or
// maintained. It is never fatal: the client absorbs it into its reconnect
// state machine.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection error: " + e.Op
	}
	return "connection error: " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewNotification builds a new_notification event.
func NewNotification(n models.Notification) Event {
	return Event{Kind: KindNewNotification, Notification: &n}
}

// NotificationRead builds a notification_read event for one id.
func NotificationRead(id int) Event {
	return Event{Kind: KindNotificationRead, NotificationID: id}
}

// AllRead builds an all_read event.
func AllRead() Event {
	return Event{Kind: KindAllRead}
}

// UnreadCount builds an unread_count event carrying the authoritative count.
func UnreadCount(count int) Event {
	return Event{Kind: KindUnreadCount, Count: count}
}

// Validate checks that the event carries the payload its kind requires.
func (e Event) Validate() error {
	switch e.Kind {
	case KindNewNotification:
		if e.Notification == nil {
			return &ProtocolError{Reason: "new_notification without notification payload"}
		}
		if e.Notification.ID <= 0 {
			return &ProtocolError{Reason: "new_notification with non-positive id"}
		}
	case KindNotificationRead:
		if e.NotificationID <= 0 {
			return &ProtocolError{Reason: "notification_read with non-positive id"}
		}
	case KindAllRead:
		// no payload
	case KindUnreadCount:
		if e.Count < 0 {
			return &ProtocolError{Reason: "unread_count with negative count"}
		}
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unknown kind %q", string(e.Kind))}
	}
	return nil
}

// Encode serializes the event as JSON.
func (e Event) Encode() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses and validates a wire message. A ProtocolError is returned
// for anything that cannot be applied safely.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, &ProtocolError{Reason: "invalid json: " + err.Error()}
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Envelope is the bus wire format: one event addressed to one recipient.
type Envelope struct {
	RecipientID int   `json:"recipient_id"`
	Event       Event `json:"event"`
}

// EncodeEnvelope serializes an envelope for the bus channel.
func EncodeEnvelope(recipientID int, e Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{RecipientID: recipientID, Event: e})
}

// DecodeEnvelope parses a bus message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &ProtocolError{Reason: "invalid envelope json: " + err.Error()}
	}
	if env.RecipientID <= 0 {
		return Envelope{}, &ProtocolError{Reason: "envelope with non-positive recipient id"}
	}
	if err := env.Event.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
