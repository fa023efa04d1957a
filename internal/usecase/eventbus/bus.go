// Package eventbus fans domain events out to in-process subscribers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"repochat/internal/domain"
)

// allEvents keys subscribers that receive every event type.
const allEvents domain.EventType = "*"

type subscriber struct {
	id      uint64
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Handlers run
// asynchronously; a panicking handler is logged and does not affect others.
type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.EventType][]subscriber
	nextID atomic.Uint64
	logger *slog.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[domain.EventType][]subscriber),
		logger: logger,
	}
}

// Publish delivers event to subscribers of its type and to catch-all
// subscribers. A zero Timestamp is set to now. Publishing on a closed bus is
// a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subs[event.Type])+len(b.subs[allEvents]))
	targets = append(targets, b.subs[event.Type]...)
	targets = append(targets, b.subs[allEvents]...)
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(ctx, event, s)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, s subscriber) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"chat_id", event.ChatID,
					"panic", r,
				)
			}
		}()
		s.handler(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe func.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(allEvents, handler)
}

func (b *Bus) add(key domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[key] = append(b.subs[key], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[key]
			for i, s := range list {
				if s.id == id {
					b.subs[key] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}
}

// Close stops new publishes and waits for in-flight handlers. It is
// idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
