package database

import (
	"fmt"
	"strings"
)

// ReadyState is the lifecycle state a connection reports.
type ReadyState int

// Provider codes for each state.
const (
	Disconnected  ReadyState = 0
	Connected     ReadyState = 1
	Connecting    ReadyState = 2
	Disconnecting ReadyState = 3
	Uninitialized ReadyState = 99
)

// States maps state names to provider codes.
var States = map[string]ReadyState{
	"disconnected":  Disconnected,
	"connected":     Connected,
	"connecting":    Connecting,
	"disconnecting": Disconnecting,
	"uninitialized": Uninitialized,
}

// String returns the state name.
func (s ReadyState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	case Disconnecting:
		return "disconnecting"
	case Uninitialized:
		return "uninitialized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Idle reports whether a connect request should start a new attempt.
func (s ReadyState) Idle() bool {
	return s == Disconnected || s == Uninitialized
}

// ParseReadyState resolves a state by name, case-insensitively.
func ParseReadyState(name string) (ReadyState, error) {
	if s, ok := States[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("unknown ready state %q", name)
}
