package session

import (
	"sync"

	"github.com/google/uuid"
)

// Broadcaster fans authentication events out to subscribers.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers map[uuid.UUID]EventHandler
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		handlers: make(map[uuid.UUID]EventHandler),
	}
}

// Subscribe registers handler and returns its disposer.
func (b *Broadcaster) Subscribe(handler EventHandler) Unsubscribe {
	id := uuid.New()

	b.mu.Lock()
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers event to every current subscriber. Handlers run outside the
// lock so they may unsubscribe or publish themselves.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
