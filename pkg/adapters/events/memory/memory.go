package memory

import (
	"context"
	"sync"

	"github.com/metahuman-os/cortex/pkg/ports"
)

// Bus is an in-process event bus. The streamer publishes execution
// events on per-run topics and WebSocket sessions subscribe to them.
// Handlers run asynchronously so a slow observer never stalls a run.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]ports.EventHandler
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]ports.EventHandler)}
}

// Publish delivers event to every subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, event ports.Event) error {
	b.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h ports.EventHandler) {
			_ = h(ctx, event)
		}(h)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription is removed
// when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]ports.EventHandler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[topic]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, topic)
			}
		}
	}()
	return nil
}

// Close drops all subscriptions.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]ports.EventHandler)
	return nil
}
