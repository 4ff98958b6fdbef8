package bus

import (
	"context"
	"sync"

	"campus-notify-go/internal/protocol"
)

type memoryMessage struct {
	recipientID int
	event       protocol.Event
}

// MemoryBus is an in-process Bus for tests and single-node runs. Sends
// are non-blocking: if the pump is not draining fast enough the message
// is dropped, matching the at-least-once-but-lossy bus contract.
type MemoryBus struct {
	mu     sync.Mutex
	ch     chan memoryMessage
	closed bool
}

func NewMemoryBus(bufferSize int) *MemoryBus {
	return &MemoryBus{ch: make(chan memoryMessage, max(bufferSize, 1))}
}

func (b *MemoryBus) Publish(ctx context.Context, recipientID int, event protocol.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	select {
	case b.ch <- memoryMessage{recipientID: recipientID, event: event}:
	default:
	}
	return nil
}

func (b *MemoryBus) Run(ctx context.Context, deliver DeliverFunc) error {
	for {
		select {
		case msg, ok := <-b.ch:
			if !ok {
				return nil
			}
			deliver(msg.recipientID, msg.event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close is idempotent and stops the pump after the buffer drains.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		close(b.ch)
		b.closed = true
	}
	return nil
}
