package eventstream

import (
	"sync"
)

// EventEmitter maps events (of type K) to callback listeners receiving values of type V.
// Host shims use it as their listener registry.
type EventEmitter[K comparable, V any] struct {
	listeners map[K][]func(V)
	closed    bool
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitter and returns a pointer to it.
func NewEventEmitter[K comparable, V any]() *EventEmitter[K, V] {
	return &EventEmitter[K, V]{
		listeners: make(map[K][]func(V)),
	}
}

// On registers a new listener for the given event. Registering on a closed emitter is a no-op.
func (e *EventEmitter[K, V]) On(event K, listener func(V)) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.closed {
		return
	}
	e.listeners[event] = append(e.listeners[event], listener)
}

// Emit calls every listener registered for the event, in registration order, and returns once all
// of them have returned. Listeners run without the lock held, so they may register new listeners.
func (e *EventEmitter[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	if e.closed {
		e.lock.RUnlock()
		return
	}
	listeners := append([]func(V){}, e.listeners[event]...)
	e.lock.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Close drops every listener. Later Emit and On calls do nothing.
func (e *EventEmitter[K, V]) Close() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.closed = true
	e.listeners = make(map[K][]func(V))
}
