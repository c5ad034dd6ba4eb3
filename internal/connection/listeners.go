package connection

import (
	"sync"

	"github.com/joacominatel/minaconn/internal/database"
)

// operation owns the listeners one connect or disconnect attempt
// registers on a connection, and removes them by token.
type operation struct {
	conn database.Conn

	mu        sync.Mutex
	listeners map[database.Event]database.Listener
}

func newOperation(conn database.Conn) *operation {
	return &operation{conn: conn, listeners: make(map[database.Event]database.Listener)}
}

// listen attaches h for event unless this operation already holds a
// listener for it. Error listeners persist until removed; all others
// fire at most once.
func (op *operation) listen(event database.Event, h database.Handler) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if _, ok := op.listeners[event]; ok {
		return
	}
	if event == database.EventError {
		op.listeners[event] = op.conn.On(event, h)
		return
	}
	op.listeners[event] = op.conn.Once(event, h)
}

// remove detaches this operation's listener for event, if any.
func (op *operation) remove(event database.Event) {
	op.mu.Lock()
	l, ok := op.listeners[event]
	delete(op.listeners, event)
	op.mu.Unlock()

	if ok {
		op.conn.Off(l)
	}
}

// teardown detaches every listener this operation still holds.
func (op *operation) teardown() {
	op.mu.Lock()
	held := op.listeners
	op.listeners = make(map[database.Event]database.Listener)
	op.mu.Unlock()

	for _, l := range held {
		op.conn.Off(l)
	}
}

// settle delivers the first outcome of an operation and drops the rest.
type settle chan error

func newSettle() settle {
	return make(settle, 1)
}

func (s settle) send(err error) {
	select {
	case s <- err:
	default:
	}
}
