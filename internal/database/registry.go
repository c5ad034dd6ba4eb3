package database

import "sync"

// Provider creates connections and tracks every connection it knows about.
type Provider interface {
	// Connect configures the shared default connection and returns it.
	Connect(uri string, options Options) (Conn, error)

	// CreateConnection returns a new, independent connection.
	CreateConnection(uri string, options Options) (Conn, error)

	// Connections lists all known connections, default slot first.
	Connections() []Conn

	// Acquire hands out the default slot while it is the only known
	// connection and has never been claimed, and a new connection
	// otherwise. The check and the claim happen as one step.
	Acquire(uri string, options Options) (Conn, error)
}

// Registry is a Provider that builds connections on top of a Dialer.
// It starts with one uninitialized default connection.
type Registry struct {
	dialer Dialer

	mu      sync.Mutex
	def     *connection
	claimed bool
	conns   []*connection
}

// NewRegistry creates a registry whose connections dial through d.
func NewRegistry(d Dialer) *Registry {
	r := &Registry{dialer: d}
	r.Reset()
	return r
}

// Connect configures the default slot with uri and options. The slot is
// only reconfigured while it is idle; otherwise it is returned as is.
func (r *Registry) Connect(uri string, options Options) (Conn, error) {
	if uri == "" {
		return nil, ErrNoURI
	}

	r.mu.Lock()
	def := r.def
	r.claimed = true
	r.mu.Unlock()

	if def.ReadyState().Idle() {
		def.configure(uri, options)
	}
	return def, nil
}

// Acquire implements Provider.
func (r *Registry) Acquire(uri string, options Options) (Conn, error) {
	if uri == "" {
		return nil, ErrNoURI
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.claimed && len(r.conns) == 1 && r.def.ReadyState() == Uninitialized {
		r.claimed = true
		r.def.configure(uri, options)
		return r.def, nil
	}

	c := newConnection(r.dialer)
	c.configure(uri, options)
	r.conns = append(r.conns, c)
	return c, nil
}

// CreateConnection registers and returns a new uninitialized connection.
func (r *Registry) CreateConnection(uri string, options Options) (Conn, error) {
	if uri == "" {
		return nil, ErrNoURI
	}

	c := newConnection(r.dialer)
	c.configure(uri, options)

	r.mu.Lock()
	r.conns = append(r.conns, c)
	r.mu.Unlock()
	return c, nil
}

// Connections returns a snapshot of all known connections.
func (r *Registry) Connections() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Default returns the shared default connection.
func (r *Registry) Default() Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

// Reset forgets every connection and installs a fresh default slot.
// Connections handed out earlier are not closed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.def = newConnection(r.dialer)
	r.claimed = false
	r.conns = []*connection{r.def}
}
