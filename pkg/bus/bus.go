// Package bus carries inbound events to the single relay consumer and
// operator replies back to the channels that asked.
package bus

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned when publishing to a closed MessageBus.
var ErrBusClosed = errors.New("message bus closed")

const defaultBufferSize = 100

type MessageBus struct {
	inbound  chan Event
	outbound chan OutboundMessage
	done     chan struct{}
	closed   atomic.Bool
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBufferSize)
}

// NewMessageBusSize creates a bus whose queues hold size entries before
// publishers block.
func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan Event, size),
		outbound: make(chan OutboundMessage, size),
		done:     make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, evt Event) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.inbound <- evt:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConsumeInbound blocks for the next event. The second result is false once
// the bus is closed or ctx is done.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case evt, ok := <-mb.inbound:
		return evt, ok
	case <-mb.done:
		return Event{}, false
	case <-ctx.Done():
		return Event{}, false
	}
}

// Inbound exposes the receive side for consumers that multiplex it with
// other channels in a select.
func (mb *MessageBus) Inbound() <-chan Event { return mb.inbound }

// Done is closed when the bus is closed.
func (mb *MessageBus) Done() <-chan struct{} { return mb.done }

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	if mb.closed.Load() {
		return ErrBusClosed
	}
	select {
	case mb.outbound <- msg:
		return nil
	case <-mb.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg, ok := <-mb.outbound:
		return msg, ok
	case <-mb.done:
		return OutboundMessage{}, false
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	if mb.closed.CompareAndSwap(false, true) {
		close(mb.done)
	}
}
