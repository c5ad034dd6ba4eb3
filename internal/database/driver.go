package database

import "context"

// Options holds driver-specific connection options. The handle treats
// them as opaque and passes them through to the Dialer.
type Options map[string]any

// Clone returns a shallow copy of o.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Dialer opens driver sessions.
// All implementations must be safe for concurrent use.
type Dialer interface {
	// Dial establishes a session to the database identified by uri.
	Dial(ctx context.Context, uri string, options Options) (Session, error)
}

// Session is an open driver session owned by a connection.
type Session interface {
	// Ping checks if the session is alive.
	Ping(ctx context.Context) error

	// Close releases the session.
	Close() error
}
