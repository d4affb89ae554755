// Package pubsub is a typed topic -> handler set dispatcher.
package pubsub

import "sync"

type Handler[T any] func(T)

type subscription[T any] struct {
	handler Handler[T]
}

type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[string][]*subscription[T]
}

func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[string][]*subscription[T])}
}

// Subscribe registers h for topic. Calling the returned function removes
// it; calling it again is a no-op.
func (b *Bus[T]) Subscribe(topic string, h Handler[T]) func() {
	s := &subscription[T]{handler: h}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, candidate := range list {
				if candidate == s {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
		})
	}
}

// Publish calls every handler of topic in subscription order and returns
// how many were called. Handlers run outside the lock and may subscribe
// or unsubscribe.
func (b *Bus[T]) Publish(topic string, v T) int {
	b.mu.RLock()
	list := append([]*subscription[T](nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, s := range list {
		s.handler(v)
	}
	return len(list)
}

// Clear drops every subscription.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.subs)
}
