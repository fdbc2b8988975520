package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"skillconnect/internal/models"
)

// AllEvents subscribes a handler to every event name.
const AllEvents = "*"

// Handler reacts to a realtime message.
type Handler func(msg *models.RealtimeMessage) error

// Bus provides in-process pub/sub for realtime messages.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event name, or AllEvents.
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[event] = append(b.subscribers[event], handler)
}

// Publish runs the handlers of msg.Event synchronously and joins their errors.
func (b *Bus) Publish(_ context.Context, msg *models.RealtimeMessage) error {
	if b == nil || msg == nil {
		return nil
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[msg.Event]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes a message.
func (b *Bus) PublishJSON(ctx context.Context, event, channel string, audience []int64, payload interface{}) error {
	if b == nil {
		return nil
	}

	msg, err := NewMessage(event, channel, audience, payload)
	if err != nil {
		return err
	}
	return b.Publish(ctx, msg)
}

// NewMessage builds a RealtimeMessage with a JSON payload.
func NewMessage(event, channel string, audience []int64, payload interface{}) (*models.RealtimeMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &models.RealtimeMessage{
		Event:    event,
		Channel:  channel,
		Audience: audience,
		Payload:  raw,
	}, nil
}
