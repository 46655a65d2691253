// Package session owns the lifecycle of a streaming session with the remote
// render server: creating and tearing down the receiver, reacting to pause
// and resume, and relaying the receiver's callbacks to the pose bridge,
// haptics and audio output.
package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoServerAddress is returned by Start when no server is configured.
	ErrNoServerAddress = errors.New("session: no server address configured")

	// ErrNotStreaming is returned by operations that need a live session.
	ErrNotStreaming = errors.New("session: not streaming")

	// ErrClosed is returned after the controller's Run loop has exited.
	ErrClosed = errors.New("session: controller closed")
)

// State is the lifecycle state of the streaming session.
type State int32

const (
	StateReadyToConnect State = iota
	StateConnectionAttemptInProgress
	StateConnectionAttemptFailed
	StateStreamingSessionInProgress
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateReadyToConnect:
		return "ready_to_connect"
	case StateConnectionAttemptInProgress:
		return "connecting"
	case StateConnectionAttemptFailed:
		return "connection_failed"
	case StateStreamingSessionInProgress:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state by name for JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateReason is the service-supplied cause of a state change.
type StateReason int32

const (
	ReasonNone StateReason = iota
	ReasonTimeout
	ReasonServerDisconnected
	ReasonClientRequested
	ReasonNetworkError
	ReasonAuthorizationFailed
	ReasonIncompatibleVersion
	ReasonUnknown
)

func (r StateReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTimeout:
		return "timeout"
	case ReasonServerDisconnected:
		return "server_disconnected"
	case ReasonClientRequested:
		return "client_requested"
	case ReasonNetworkError:
		return "network_error"
	case ReasonAuthorizationFailed:
		return "authorization_failed"
	case ReasonIncompatibleVersion:
		return "incompatible_version"
	case ReasonUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("reason(%d)", int32(r))
	}
}

// MarshalText renders the reason by name for JSON payloads.
func (r StateReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Event records one state transition.
type Event struct {
	State  State       `json:"state"`
	Reason StateReason `json:"reason"`
	At     time.Time   `json:"at"`
}
