package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"
)

type inboxMessage struct {
	topic   string
	payload []byte
	handler MessageHandler
}

// Inbox moves message handling off paho's delivery goroutine onto a single
// worker. Messages are handled one at a time in arrival order, and handlers
// may publish and wait for acknowledgements without stalling delivery.
//
//	inbox := mqtt.NewInbox(256)
//	go inbox.Run(ctx)
//	client.Subscribe(topic, qos, inbox.Wrap(handler))
type Inbox struct {
	queue   chan inboxMessage
	dropped atomic.Uint64
	logger  Logger
}

// NewInbox creates an inbox holding up to size waiting messages.
func NewInbox(size int) *Inbox {
	if size < 1 {
		size = 1
	}
	return &Inbox{queue: make(chan inboxMessage, size)}
}

// SetLogger sets the logger for handler errors and panics.
func (b *Inbox) SetLogger(logger Logger) {
	b.logger = logger
}

// Wrap returns a handler that queues messages for h. When the queue is full
// the message is dropped and ErrInboxFull returned, which the client logs.
func (b *Inbox) Wrap(h MessageHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		select {
		case b.queue <- inboxMessage{topic: topic, payload: payload, handler: h}:
			return nil
		default:
			b.dropped.Add(1)
			return fmt.Errorf("%w: dropped message on %s", ErrInboxFull, topic)
		}
	}
}

// Run handles queued messages until ctx is cancelled.
func (b *Inbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			b.handle(msg)
		}
	}
}

// Drain handles every message queued so far and returns how many it
// handled. It must not run concurrently with Run.
func (b *Inbox) Drain() int {
	n := 0
	for {
		select {
		case msg := <-b.queue:
			b.handle(msg)
			n++
		default:
			return n
		}
	}
}

// Dropped returns how many messages were refused because the queue was full.
func (b *Inbox) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Inbox) handle(msg inboxMessage) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("inbox handler panic recovered", "topic", msg.topic, "panic", r)
		}
	}()
	if err := msg.handler(msg.topic, msg.payload); err != nil && b.logger != nil {
		b.logger.Warn("message handling failed", "topic", msg.topic, "error", err)
	}
}
