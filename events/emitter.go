// Package events provides a small typed publish/subscribe primitive used to
// notify UI layers of execution and debug state changes. Each event name gets
// its own Emitter with a concrete payload type, so subscribers never decode
// loosely-typed payloads.
package events

import "sync"

// Emitter delivers values of type T to registered subscribers. Emit calls
// subscribers synchronously in an unspecified order. All methods are safe
// for concurrent use.
type Emitter[T any] struct {
	mutex       sync.RWMutex
	nextID      int
	subscribers map[int]func(T)
}

// NewEmitter creates an Emitter for payload type T.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{subscribers: map[int]func(T){}}
}

// Subscribe registers fn and returns a function that removes the
// subscription. Unsubscribing more than once is a no-op.
func (e *Emitter[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mutex.Lock()
	id := e.nextID
	e.nextID++
	e.subscribers[id] = fn
	e.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mutex.Lock()
			delete(e.subscribers, id)
			e.mutex.Unlock()
		})
	}
}

// Emit delivers value to every current subscriber.
func (e *Emitter[T]) Emit(value T) {
	e.mutex.RLock()
	fns := make([]func(T), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mutex.RUnlock()

	for _, fn := range fns {
		fn(value)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (e *Emitter[T]) SubscriberCount() int {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return len(e.subscribers)
}
