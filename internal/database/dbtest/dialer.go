// Package dbtest provides a scriptable in-memory Dialer for tests.
package dbtest

import (
	"context"
	"sync"

	"github.com/joacominatel/minaconn/internal/database"
)

// Dialer records dials and closes and can be told to block or fail.
type Dialer struct {
	mu        sync.Mutex
	gate      chan struct{}
	closeGate chan struct{}
	dialErr   error
	closeErr  error
	pingErr   error
	dials     []string
	closes    int
}

// NewDialer returns a Dialer whose dials succeed immediately.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements database.Dialer.
func (d *Dialer) Dial(ctx context.Context, uri string, _ database.Options) (database.Session, error) {
	d.mu.Lock()
	d.dials = append(d.dials, uri)
	gate, err := d.gate, d.dialErr
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &Session{dialer: d, URI: uri}, nil
}

// Hold makes subsequent dials block until the returned release func is called.
func (d *Dialer) Hold() (release func()) {
	return d.hold(&d.gate)
}

// HoldClose makes session closes block until the returned release func
// is called.
func (d *Dialer) HoldClose() (release func()) {
	return d.hold(&d.closeGate)
}

func (d *Dialer) hold(slot *chan struct{}) func() {
	gate := make(chan struct{})
	d.mu.Lock()
	*slot = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if *slot == gate {
				*slot = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// FailWith makes subsequent dials return err. A nil err restores success.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// FailCloseWith makes session Close return err.
func (d *Dialer) FailCloseWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr = err
}

// FailPingWith makes session Ping return err.
func (d *Dialer) FailPingWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pingErr = err
}

// Dials returns the URIs dialed so far, in order.
func (d *Dialer) Dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...)
}

// Closes returns how many sessions were closed.
func (d *Dialer) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// Session is the session handed out by Dialer.
type Session struct {
	dialer *Dialer
	URI    string
}

// Ping implements database.Session.
func (s *Session) Ping(context.Context) error {
	s.dialer.mu.Lock()
	defer s.dialer.mu.Unlock()
	return s.dialer.pingErr
}

// Close implements database.Session.
func (s *Session) Close() error {
	s.dialer.mu.Lock()
	gate := s.dialer.closeGate
	s.dialer.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.dialer.mu.Lock()
	defer s.dialer.mu.Unlock()
	s.dialer.closes++
	return s.dialer.closeErr
}
