package database

import (
	"sync"

	"github.com/google/uuid"
)

// Event is the name of a connection lifecycle event.
type Event string

// Lifecycle events emitted by a connection.
const (
	EventConnecting    Event = "connecting"
	EventConnected     Event = "connected"
	EventOpen          Event = "open"
	EventError         Event = "error"
	EventDisconnecting Event = "disconnecting"
	EventDisconnected  Event = "disconnected"
	EventClose         Event = "close"
)

// Handler receives an event. err is set for EventError and nil otherwise.
type Handler func(err error)

// Listener identifies one registration on an Emitter. It is the token
// passed back to Off.
type Listener struct {
	ID    uuid.UUID
	Event Event
}

type registration struct {
	Listener
	handler Handler
	once    bool
}

// Emitter is a thread-safe event registry. The zero value is ready to use.
type Emitter struct {
	mu        sync.Mutex
	listeners map[Event][]registration
}

// On registers a persistent handler.
func (e *Emitter) On(event Event, h Handler) Listener {
	return e.add(event, h, false)
}

// Once registers a handler that is removed before its first invocation.
func (e *Emitter) Once(event Event, h Handler) Listener {
	return e.add(event, h, true)
}

func (e *Emitter) add(event Event, h Handler, once bool) Listener {
	l := Listener{ID: uuid.New(), Event: event}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[Event][]registration)
	}
	e.listeners[event] = append(e.listeners[event], registration{Listener: l, handler: h, once: once})
	return l
}

// Off removes a registration. It reports whether the listener was still present.
func (e *Emitter) Off(l Listener) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	regs := e.listeners[l.Event]
	for i, r := range regs {
		if r.ID == l.ID {
			e.listeners[l.Event] = append(regs[:i:i], regs[i+1:]...)
			if len(e.listeners[l.Event]) == 0 {
				delete(e.listeners, l.Event)
			}
			return true
		}
	}
	return false
}

// ListenerCount returns the number of handlers registered for event.
func (e *Emitter) ListenerCount(event Event) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit invokes the handlers registered for event in registration order.
// Handlers run outside the lock and may register or remove listeners.
func (e *Emitter) Emit(event Event, err error) {
	e.mu.Lock()
	regs := append([]registration(nil), e.listeners[event]...)
	kept := e.listeners[event][:0:0]
	for _, r := range e.listeners[event] {
		if !r.once {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, event)
	} else {
		e.listeners[event] = kept
	}
	e.mu.Unlock()

	for _, r := range regs {
		r.handler(err)
	}
}
