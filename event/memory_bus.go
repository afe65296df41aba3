package event

import (
	"context"
	"sync"
)

// MemoryBus is an in-process bus for single binary setups and tests
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[int]chan Event),
	}
}

// Publish fans e out to every current subscriber of topic.
// A subscriber whose buffer is full misses the event.
func (b *MemoryBus) Publish(_ context.Context, topic string, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[topic] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) (Unsubscribe, error) {
	ch := make(chan Event, 256)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	unsubscribe := func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
			close(done)
		})
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case <-done:
				return
			case e := <-ch:
				handler(e)
			}
		}
	}()

	return unsubscribe, nil
}
