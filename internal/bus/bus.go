// Package bus provides the process-wide publish/subscribe hub. Delivery is
// synchronous and in subscription order, on the publisher's goroutine.
// There is no queue and no delivery guarantee; it is a best-effort fan-out.
package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Handler receives the payload published for an event type.
type Handler func(payload any)

// Subscription identifies one registered handler so it can be removed
// later. Handlers are not comparable in Go, so identity lives here.
type Subscription struct {
	eventType string
	id        uint64
}

// Bus is an explicitly constructed event hub owned by the session that
// created it. Each orchestrator instance owns its own Bus.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]entry
	logger *zap.Logger
}

type entry struct {
	id uint64
	fn Handler
}

// New creates an empty Bus. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]entry),
		logger: logger,
	}
}

// Subscribe appends a handler to the ordered list for an event type and
// returns the subscription handle used to remove it.
func (b *Bus) Subscribe(eventType string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], entry{id: b.nextID, fn: fn})
	return &Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Removing an
// unregistered or already-removed subscription is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[sub.eventType]
	for i, e := range entries {
		if e.id == sub.id {
			b.subs[sub.eventType] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Publish invokes every subscriber for the event type, in subscription
// order, on the caller's goroutine. A panicking subscriber is recovered
// and skipped so it cannot block delivery to the others or propagate to
// the publisher.
func (b *Bus) Publish(eventType string, payload any) {
	b.mu.RLock()
	entries := make([]entry, len(b.subs[eventType]))
	copy(entries, b.subs[eventType])
	b.mu.RUnlock()

	for _, e := range entries {
		b.deliver(eventType, e.fn, payload)
	}
}

func (b *Bus) deliver(eventType string, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("event handler panicked",
				zap.String("event", eventType),
				zap.Any("panic", r))
		}
	}()
	fn(payload)
}
