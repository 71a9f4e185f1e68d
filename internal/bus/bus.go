// Package bus routes messages between channels and the agent runtime and
// fans runtime events out to subscribers.
package bus

import (
	"context"
	"sync"
)

// MessageBus carries inbound user messages toward the scheduler, outbound
// agent replies toward their channels, and broadcasts events.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	handlerMu sync.RWMutex
	handlers  map[string]MessageHandler // channel name → delivery handler

	subMu       sync.RWMutex
	subscribers map[string]EventHandler // subscriber id → handler
}

func New() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, 100),
		outbound:    make(chan OutboundMessage, 100),
		handlers:    make(map[string]MessageHandler),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound queues a message from a channel.
func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.inbound <- msg
}

// ConsumeInbound blocks until a message is available or ctx ends.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-mb.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound queues an agent reply for channel delivery.
func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.outbound <- msg
}

// ConsumeOutbound blocks until an outbound message is available or ctx ends.
func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-mb.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// RegisterHandler installs the delivery handler for a channel.
func (mb *MessageBus) RegisterHandler(channel string, handler MessageHandler) {
	mb.handlerMu.Lock()
	defer mb.handlerMu.Unlock()
	mb.handlers[channel] = handler
}

// Handler returns the delivery handler for a channel.
func (mb *MessageBus) Handler(channel string) (MessageHandler, bool) {
	mb.handlerMu.RLock()
	defer mb.handlerMu.RUnlock()
	h, ok := mb.handlers[channel]
	return h, ok
}

// Subscribe registers an event subscriber under id.
func (mb *MessageBus) Subscribe(id string, handler EventHandler) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	mb.subscribers[id] = handler
}

// Unsubscribe removes an event subscriber.
func (mb *MessageBus) Unsubscribe(id string) {
	mb.subMu.Lock()
	defer mb.subMu.Unlock()
	delete(mb.subscribers, id)
}

// Broadcast delivers event to every subscriber. Handlers must not block.
func (mb *MessageBus) Broadcast(event Event) {
	mb.subMu.RLock()
	defer mb.subMu.RUnlock()
	for _, handler := range mb.subscribers {
		handler(event)
	}
}

// Close shuts the bus down.
func (mb *MessageBus) Close() {
	close(mb.inbound)
	close(mb.outbound)
}
