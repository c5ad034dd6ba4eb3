package database

import "errors"

var (
	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected = errors.New("not connected")

	// ErrClosedBeforeOpen is returned when a connection closes while a
	// connect attempt is still waiting for it to open.
	ErrClosedBeforeOpen = errors.New("connection closed before open")

	// ErrNoURI is returned when a connection is opened without a target.
	ErrNoURI = errors.New("connection has no uri")
)
