package bus

import (
	"context"

	"campus-notify-go/internal/protocol"
)

// DeliverFunc receives one decoded event addressed to one recipient.
type DeliverFunc func(recipientID int, event protocol.Event)

// Bus fans a published event out to every node holding live sessions for
// the recipient. Delivery is at-least-once and unordered across
// recipients; durability is the store's job, not the bus's.
type Bus interface {
	// Publish sends one event addressed to a recipient.
	Publish(ctx context.Context, recipientID int, event protocol.Event) error

	// Run pumps inbound events to deliver until ctx is cancelled.
	Run(ctx context.Context, deliver DeliverFunc) error
}
