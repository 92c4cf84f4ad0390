// Package transport defines the publish/subscribe connection used by a chat
// session. Implementations normalise their lifecycle into four callbacks.
package transport

import "fmt"

// Transport is one connection handle to the broker.
//
// Implementations must never invoke callbacks or subscription handlers
// synchronously from inside Connect, Subscribe or Publish.
type Transport interface {
	// Connect starts the handshake and returns immediately. The outcome is
	// reported through Callbacks.OnConnected or OnTransportError.
	Connect()

	// Subscribe registers handler for destination. handler is called once
	// per inbound frame, in the order the broker delivered them.
	Subscribe(destination string, handler func(body []byte)) error

	// Publish sends one message. No acknowledgement is awaited.
	Publish(destination string, body []byte) error

	// Disconnect tears the connection down and stops any reconnect attempts.
	// It is safe to call more than once and before Connect.
	Disconnect()
}

// Callbacks receive lifecycle events from a Transport. Nil fields are
// skipped.
type Callbacks struct {
	OnConnected      func()
	OnDisconnected   func()
	OnProtocolError  func(err error)
	OnTransportError func(err error)
}

// Factory creates a Transport that reports to cb.
type Factory func(cb Callbacks) Transport

// Connected invokes OnConnected if set.
func (cb Callbacks) Connected() {
	if cb.OnConnected != nil {
		cb.OnConnected()
	}
}

// Disconnected invokes OnDisconnected if set.
func (cb Callbacks) Disconnected() {
	if cb.OnDisconnected != nil {
		cb.OnDisconnected()
	}
}

// ProtocolFailure invokes OnProtocolError if set.
func (cb Callbacks) ProtocolFailure(err error) {
	if cb.OnProtocolError != nil {
		cb.OnProtocolError(err)
	}
}

// TransportFailure invokes OnTransportError if set.
func (cb Callbacks) TransportFailure(err error) {
	if cb.OnTransportError != nil {
		cb.OnTransportError(err)
	}
}

// ProtocolError is an error reported by the broker itself, e.g. a STOMP
// ERROR frame.
type ProtocolError struct {
	Message string
	Details string
}

func (e *ProtocolError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("broker error: %s", e.Message)
	}
	return fmt.Sprintf("broker error: %s: %s", e.Message, e.Details)
}

// TransportError is a failure of the underlying connection.
type TransportError struct {
	Op  string // "dial", "handshake", "read", "subscribe", ...
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrNotConnected is returned by Subscribe and Publish when no connection
// is established.
var ErrNotConnected = fmt.Errorf("transport: not connected")
