package database

import (
	"context"
	"sync"

	"github.com/joacominatel/minaconn/internal/uri"
)

// Conn is a single database connection with an observable lifecycle.
// All implementations must be safe for concurrent use.
type Conn interface {
	// Host and Port describe the first target host.
	Host() string
	Port() int

	// Hosts lists every target when the connection spans several hosts,
	// and is nil for single-host connections.
	Hosts() []uri.Host

	User() string
	Pass() string

	// Name returns the database name.
	Name() string

	// URI returns the connection string the connection was configured with.
	URI() string

	Options() Options
	ReadyState() ReadyState

	// Open starts connecting in the background. The outcome is reported
	// through EventOpen or EventError. Open is a no-op unless the
	// connection is uninitialized or disconnected.
	Open(ctx context.Context)

	// Close closes the connection and returns once it is disconnected.
	Close(ctx context.Context) error

	// Ping checks the open session.
	Ping(ctx context.Context) error

	// Session returns the driver session, or nil when not connected.
	Session() Session

	On(event Event, h Handler) Listener
	Once(event Event, h Handler) Listener
	Off(l Listener) bool
	ListenerCount(event Event) int
}

type connection struct {
	Emitter

	dialer Dialer

	mu       sync.RWMutex
	uri      string
	desc     uri.Descriptor
	parseErr error
	options  Options
	state    ReadyState
	session  Session
	dialing  chan struct{}
	abort    bool
	closing  chan struct{}
	closeErr error
}

func newConnection(dialer Dialer) *connection {
	return &connection{dialer: dialer, state: Uninitialized}
}

// configure sets the target. A URI that fails to parse is kept and
// reported through EventError on the next Open.
func (c *connection) configure(raw string, options Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.uri = raw
	c.options = options.Clone()
	c.desc = uri.Descriptor{}
	c.parseErr = nil
	if raw == "" {
		return
	}
	c.desc, c.parseErr = uri.ParseDriver(raw)
}

func (c *connection) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.desc.Hosts) == 0 {
		return ""
	}
	return c.desc.Hosts[0].Host
}

func (c *connection) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.desc.Hosts) == 0 {
		return 0
	}
	return c.desc.Hosts[0].Port
}

func (c *connection) Hosts() []uri.Host {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.desc.Hosts) < 2 {
		return nil
	}
	return append([]uri.Host(nil), c.desc.Hosts...)
}

func (c *connection) User() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desc.Username
}

func (c *connection) Pass() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desc.Password
}

func (c *connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.desc.Database
}

func (c *connection) URI() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uri
}

func (c *connection) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options.Clone()
}

func (c *connection) ReadyState() ReadyState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *connection) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *connection) Ping(ctx context.Context) error {
	sess := c.Session()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.Ping(ctx)
}

func (c *connection) Open(ctx context.Context) {
	c.mu.Lock()
	if !c.state.Idle() {
		c.mu.Unlock()
		return
	}

	var err error
	switch {
	case c.uri == "":
		err = ErrNoURI
	case c.parseErr != nil:
		err = c.parseErr
	}
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		c.Emit(EventError, err)
		return
	}

	c.state = Connecting
	c.dialing = make(chan struct{})
	target, options, dialing := c.uri, c.options.Clone(), c.dialing
	c.mu.Unlock()

	c.Emit(EventConnecting, nil)

	go func() {
		defer close(dialing)

		sess, err := c.dialer.Dial(ctx, target, options)

		c.mu.Lock()
		aborted := c.abort
		c.abort = false
		if err != nil {
			c.state = Disconnected
			c.mu.Unlock()
			c.Emit(EventError, err)
			return
		}
		if aborted {
			c.state = Disconnected
			c.mu.Unlock()
			_ = sess.Close()
			c.Emit(EventDisconnected, nil)
			c.Emit(EventClose, nil)
			return
		}
		c.session = sess
		c.state = Connected
		c.mu.Unlock()

		c.Emit(EventConnected, nil)
		c.Emit(EventOpen, nil)
	}()
}

func (c *connection) Close(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Disconnected, Uninitialized:
		c.mu.Unlock()
		return nil
	case Connecting:
		c.abort = true
		dialing := c.dialing
		c.mu.Unlock()
		c.Emit(EventDisconnecting, nil)
		return wait(ctx, dialing, nil)
	case Disconnecting:
		closing := c.closing
		c.mu.Unlock()
		return wait(ctx, closing, func() error {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return c.closeErr
		})
	}

	c.state = Disconnecting
	c.closing = make(chan struct{})
	c.closeErr = nil
	sess, closing := c.session, c.closing
	c.mu.Unlock()

	c.Emit(EventDisconnecting, nil)

	var err error
	if sess != nil {
		err = sess.Close()
	}

	c.mu.Lock()
	c.session = nil
	c.state = Disconnected
	c.closeErr = err
	c.mu.Unlock()
	close(closing)

	if err != nil {
		c.Emit(EventError, err)
	}
	c.Emit(EventDisconnected, nil)
	c.Emit(EventClose, nil)
	return err
}

func wait(ctx context.Context, done <-chan struct{}, result func() error) error {
	select {
	case <-done:
		if result == nil {
			return nil
		}
		return result()
	case <-ctx.Done():
		return ctx.Err()
	}
}
