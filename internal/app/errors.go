package app

import "fmt"

// ErrConnection represents a database connection error.
type ErrConnection struct {
	Profile string
	Cause   error
}

func (e *ErrConnection) Error() string {
	return fmt.Sprintf("connection error (%s): %v", e.Profile, e.Cause)
}

func (e *ErrConnection) Unwrap() error {
	return e.Cause
}

// ErrDisconnection represents an error raised while closing a connection.
type ErrDisconnection struct {
	Cause error
}

func (e *ErrDisconnection) Error() string {
	return fmt.Sprintf("disconnection error: %v", e.Cause)
}

func (e *ErrDisconnection) Unwrap() error {
	return e.Cause
}

// ErrConfig represents a configuration error.
type ErrConfig struct {
	Cause error
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("config error: %v", e.Cause)
}

func (e *ErrConfig) Unwrap() error {
	return e.Cause
}
