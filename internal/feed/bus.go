package feed

import (
	"sync"

	"github.com/mExOms/sor/pkg/types"
)

// Bus is an in-process order update feed. Venue adapters publish fills
// into it and the router subscribes; it also backs tests that need a
// feed without a broker.
type Bus struct {
	mu       sync.RWMutex
	handlers []func(types.OrderUpdate)
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler called synchronously for every update
func (b *Bus) Subscribe(handler func(types.OrderUpdate)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
	return nil
}

// Publish delivers an update to every subscriber
func (b *Bus) Publish(update types.OrderUpdate) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(update)
	}
}
