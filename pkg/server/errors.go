package server

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrSendQueueFull is returned when a connection's send queue overflows.
	// The connection is closed with a policy-violation code.
	ErrSendQueueFull = errors.New("server: send queue full")
)

// TransportError wraps a failure of the underlying WebSocket connection.
type TransportError struct {
	ConnID    string
	SessionID string
	Err       error
}

// Error returns the error message with connection context.
func (e *TransportError) Error() string {
	return fmt.Sprintf("server: connection %s (session %s): %v", e.ConnID, e.SessionID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}
