package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Bus fans events out to subscribers. Delivery is best-effort: a subscriber
// that stops draining its channel loses events rather than blocking the
// reconciler.
type Bus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Envelope
	closed bool
}

const subscriberBuffer = 64

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[int]chan Envelope),
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel.
func (b *Bus) Subscribe() (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Envelope)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Envelope, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers ev to all current subscribers.
func (b *Bus) Publish(ev Event) {
	env := Envelope{Event: ev, At: time.Now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("event", ev.Name()))
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
