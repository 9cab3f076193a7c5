package backend

import (
	"context"
	"sync"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 100

// Broker fans events out to subscribers. Sends never block the publisher: a
// subscriber whose buffer is full misses the event.
type Broker[T any] struct {
	mu          sync.RWMutex
	subscribers map[chan T]struct{}
	bufferSize  int
	closed      bool
}

// NewBroker creates a Broker with the given per-subscriber buffer size.
func NewBroker[T any](bufferSize int) *Broker[T] {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Broker[T]{
		subscribers: make(map[chan T]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber. The channel is closed and removed when
// ctx is done or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()
	return ch
}

func (b *Broker[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish delivers ev to every current subscriber.
func (b *Broker[T]) Publish(ev T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Non-blocking send so a slow consumer cannot stall the producer
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel; later subscriptions get a closed
// channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
