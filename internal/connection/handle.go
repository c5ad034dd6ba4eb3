// Package connection manages the open/close lifecycle of a single database
// connection.
//
// A Handle wraps at most one database.Conn. Connect and Disconnect are
// idempotent: they return immediately when the connection is already in
// the requested state, and callers that arrive while an attempt is in
// flight wait for that attempt and share its result instead of starting
// another one. Each attempt registers exactly one listener per lifecycle
// event and removes those listeners by token once it settles.
package connection

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/joacominatel/minaconn/internal/database"
	"github.com/joacominatel/minaconn/internal/metrics"
	"github.com/joacominatel/minaconn/internal/uri"
)

const (
	flightConnect    = "connect"
	flightDisconnect = "disconnect"
)

// Option configures a Handle.
type Option func(*Handle)

// WithLogger sets the logger lifecycle messages are written to.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handle) {
		h.logger = logger
	}
}

// WithMetrics sets the collector lifecycle operations are recorded in.
func WithMetrics(c metrics.Collector) Option {
	return func(h *Handle) {
		if c != nil {
			h.metrics = c
		}
	}
}

// Handle owns one logical database connection.
type Handle struct {
	id       uuid.UUID
	provider database.Provider
	logger   zerolog.Logger
	metrics  metrics.Collector

	flights       singleflight.Group
	connecting    atomic.Bool
	disconnecting atomic.Bool

	mu      sync.RWMutex
	uri     string
	options database.Options
	conn    database.Conn
}

// FromConnection wraps an existing, possibly already open, connection.
// The handle's URI is derived from the connection's host, port,
// credentials and database.
func FromConnection(provider database.Provider, conn database.Conn, opts ...Option) *Handle {
	h := newHandle(provider, opts)
	h.conn = conn
	h.options = conn.Options()
	if s, ok := formatConnection(conn); ok {
		h.uri = s
	} else {
		h.uri = conn.URI()
	}
	return h
}

// FromURI creates a handle for target with the given driver options.
// No connection exists until Connect is called.
func FromURI(provider database.Provider, target string, options database.Options, opts ...Option) *Handle {
	h := newHandle(provider, opts)
	h.uri = target
	h.options = options.Clone()
	return h
}

func newHandle(provider database.Provider, opts []Option) *Handle {
	h := &Handle{
		id:       uuid.New(),
		provider: provider,
		logger:   zerolog.Nop(),
		metrics:  metrics.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("handle", h.id.String()).Logger()
	return h
}

// ID returns the handle's identifier, used to correlate logs and metrics.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// URI returns the connection string the handle was created with.
func (h *Handle) URI() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.uri
}

// Connection returns the current connection, or nil.
func (h *Handle) Connection() database.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn
}

// Is reports whether the connection is in state. A handle without a
// connection is both disconnected and uninitialized.
func (h *Handle) Is(state database.ReadyState) bool {
	conn := h.Connection()
	if state.Idle() {
		return conn == nil || conn.ReadyState() == state
	}
	return conn != nil && conn.ReadyState() == state
}

// ConnectionURI renders the current connection's target in driver form.
// It reports false when the handle holds no connection.
func (h *Handle) ConnectionURI() (string, bool) {
	conn := h.Connection()
	if conn == nil {
		return "", false
	}
	if s, ok := formatConnection(conn); ok {
		return s, true
	}
	return conn.URI(), conn.URI() != ""
}

func formatConnection(conn database.Conn) (string, bool) {
	d := uri.Descriptor{
		Username: conn.User(),
		Password: conn.Pass(),
		Database: conn.Name(),
	}
	if hosts := conn.Hosts(); len(hosts) > 0 {
		d.Hosts = hosts
	} else {
		d.Hosts = []uri.Host{{Host: conn.Host(), Port: conn.Port()}}
	}

	s, err := uri.FormatDriver(uri.Format(d))
	if err != nil {
		return "", false
	}
	return s, true
}

// Connect opens the connection and returns it. It returns the current
// connection right away when it is already open, and joins the attempt
// in flight when one is running. Errors from the provider are returned
// unchanged. ctx bounds only this caller's wait; an attempt shared with
// other callers keeps running.
func (h *Handle) Connect(ctx context.Context) (database.Conn, error) {
	if conn := h.Connection(); conn != nil && conn.ReadyState() == database.Connected {
		h.logger.Info().Msgf("Already connected to %s.", uri.Redact(h.URI()))
		h.metrics.ObserveConnect(metrics.OutcomeNoop)
		return conn, nil
	}
	if h.connecting.Load() || h.Is(database.Connecting) {
		h.logger.Info().Msgf("Already connecting to %s.", uri.Redact(h.URI()))
	}

	ch := h.flights.DoChan(flightConnect, func() (any, error) {
		h.connecting.Store(true)
		defer h.connecting.Store(false)
		return h.connect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(database.Conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) connect(ctx context.Context) (database.Conn, error) {
	h.mu.Lock()
	conn := h.conn
	for conn != nil && conn.ReadyState() == database.Disconnecting {
		h.mu.Unlock()
		awaitClose(conn)
		h.mu.Lock()
		conn = h.conn
	}
	if conn == nil || conn.ReadyState().Idle() {
		next, err := h.acquire()
		if err != nil {
			h.mu.Unlock()
			h.metrics.ObserveConnect(metrics.OutcomeError)
			return nil, err
		}
		conn = next
		h.conn = conn
	}
	h.mu.Unlock()

	op := newOperation(conn)
	done := newSettle()
	op.listen(database.EventOpen, func(error) {
		op.teardown()
		done.send(nil)
	})
	op.listen(database.EventError, func(err error) {
		op.teardown()
		done.send(err)
	})
	op.listen(database.EventClose, func(error) {
		op.teardown()
		done.send(database.ErrClosedBeforeOpen)
	})

	// The attempt may have settled before the listeners were attached.
	switch state := conn.ReadyState(); {
	case state == database.Connected:
		op.teardown()
		h.settled(conn)
		return conn, nil
	case state.Idle():
		h.logger.Info().Msgf("Connecting to %s...", uri.Redact(h.URI()))
		h.metrics.ObserveConnect(metrics.OutcomeStarted)
		conn.Open(ctx)
	}

	if err := <-done; err != nil {
		h.logger.Error().Err(err).Msgf("Failed to connect to %s.", uri.Redact(h.URI()))
		h.metrics.ObserveConnect(metrics.OutcomeError)
		h.metrics.SetState(h.id.String(), conn.ReadyState())
		return nil, err
	}

	h.logger.Info().Msgf("Connected to %s.", uri.Redact(h.URI()))
	h.settled(conn)
	return conn, nil
}

// acquire returns the connection a new attempt should open. Callers
// hold h.mu.
func (h *Handle) acquire() (database.Conn, error) {
	return h.provider.Acquire(h.uri, h.options)
}

// awaitClose blocks until conn has finished disconnecting.
func awaitClose(conn database.Conn) {
	closed := newSettle()
	l := conn.Once(database.EventClose, func(error) { closed.send(nil) })
	if conn.ReadyState() != database.Disconnecting {
		conn.Off(l)
		return
	}
	<-closed
}

func (h *Handle) settled(conn database.Conn) {
	h.metrics.ObserveConnect(metrics.OutcomeSuccess)
	h.metrics.SetState(h.id.String(), conn.ReadyState())
}

// Disconnect closes the connection and returns the handle's URI. It is a
// no-op when there is nothing to close, and joins a disconnect already in
// flight. Errors raised while closing are returned unchanged.
func (h *Handle) Disconnect(ctx context.Context) (string, error) {
	if conn := h.Connection(); conn == nil || conn.ReadyState().Idle() {
		h.release(conn)
		h.logger.Info().Msgf("Already disconnected from %s.", uri.Redact(h.URI()))
		h.metrics.ObserveDisconnect(metrics.OutcomeNoop)
		return h.URI(), nil
	}
	if h.disconnecting.Load() || h.Is(database.Disconnecting) {
		h.logger.Info().Msgf("Already disconnecting from %s.", uri.Redact(h.URI()))
	}

	ch := h.flights.DoChan(flightDisconnect, func() (any, error) {
		h.disconnecting.Store(true)
		defer h.disconnecting.Store(false)
		return h.disconnect(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *Handle) disconnect(ctx context.Context) (string, error) {
	conn := h.Connection()
	if conn == nil || conn.ReadyState().Idle() {
		h.release(conn)
		h.metrics.ObserveDisconnect(metrics.OutcomeNoop)
		return h.URI(), nil
	}

	op := newOperation(conn)
	failed := newSettle()
	closed := newSettle()
	op.listen(database.EventError, func(err error) {
		op.teardown()
		failed.send(err)
	})
	op.listen(database.EventDisconnected, func(error) {
		h.logger.Info().Msgf("Disconnected from %s.", uri.Redact(h.URI()))
	})
	op.listen(database.EventClose, func(error) {
		op.remove(database.EventError)
		op.remove(database.EventDisconnected)
		closed.send(nil)
	})

	var err error
	switch state := conn.ReadyState(); {
	case state == database.Disconnecting:
		// Closed by someone else; wait for it to finish.
		<-closed
	case state.Idle():
	default:
		h.logger.Info().Msgf("Disconnecting from %s...", uri.Redact(h.URI()))
		h.metrics.ObserveDisconnect(metrics.OutcomeStarted)
		err = conn.Close(ctx)
	}
	op.teardown()

	if err == nil {
		select {
		case err = <-failed:
		default:
		}
	}
	if err != nil {
		h.logger.Error().Err(err).Msgf("Failed to disconnect from %s.", uri.Redact(h.URI()))
		h.metrics.ObserveDisconnect(metrics.OutcomeError)
		return "", err
	}

	h.release(conn)
	h.metrics.ObserveDisconnect(metrics.OutcomeSuccess)
	return h.URI(), nil
}

// release drops the handle's reference to conn if it still holds it.
func (h *Handle) release(conn database.Conn) {
	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()
	h.metrics.Forget(h.id.String())
}
