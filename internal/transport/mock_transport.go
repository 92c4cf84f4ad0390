package transport

import (
	"fmt"
	"sync"
)

// Published is a message recorded by MockTransport.Publish.
type Published struct {
	Destination string
	Body        []byte
}

// MockTransport implements Transport for testing. Connect only records the
// call; tests drive the lifecycle with FireConnected, FireDisconnected and
// Deliver.
type MockTransport struct {
	mu          sync.Mutex
	cb          Callbacks
	connects    int
	disconnects int
	connected   bool
	subs        map[string][]func([]byte)
	subscribed  []string
	published   []Published
	publishErr  error
}

// NewMockTransport creates a MockTransport reporting to cb.
func NewMockTransport(cb Callbacks) *MockTransport {
	return &MockTransport{
		cb:   cb,
		subs: make(map[string][]func([]byte)),
	}
}

// MockFactory returns a Factory that records every MockTransport it creates.
func MockFactory() (Factory, func() []*MockTransport) {
	var mu sync.Mutex
	var created []*MockTransport
	f := func(cb Callbacks) Transport {
		m := NewMockTransport(cb)
		mu.Lock()
		created = append(created, m)
		mu.Unlock()
		return m
	}
	list := func() []*MockTransport {
		mu.Lock()
		defer mu.Unlock()
		out := make([]*MockTransport, len(created))
		copy(out, created)
		return out
	}
	return f, list
}

// Connect records the call.
func (m *MockTransport) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
}

// Subscribe registers handler. Fails unless FireConnected was called.
func (m *MockTransport) Subscribe(destination string, handler func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.subs[destination] = append(m.subs[destination], handler)
	m.subscribed = append(m.subscribed, destination)
	return nil
}

// Publish records the message. Fails unless connected or when SetPublishError
// configured a failure.
func (m *MockTransport) Publish(destination string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if m.publishErr != nil {
		return m.publishErr
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	m.published = append(m.published, Published{Destination: destination, Body: cp})
	return nil
}

// Disconnect records the call and drops subscriptions.
func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected = false
	m.subs = make(map[string][]func([]byte))
}

// --- Test helpers ---

// FireConnected marks the transport connected and invokes OnConnected.
func (m *MockTransport) FireConnected() {
	m.mu.Lock()
	m.connected = true
	cb := m.cb
	m.mu.Unlock()
	cb.Connected()
}

// FireDisconnected simulates a connection loss: subscriptions are dropped
// and OnDisconnected is invoked.
func (m *MockTransport) FireDisconnected() {
	m.mu.Lock()
	m.connected = false
	m.subs = make(map[string][]func([]byte))
	cb := m.cb
	m.mu.Unlock()
	cb.Disconnected()
}

// FireProtocolError invokes OnProtocolError.
func (m *MockTransport) FireProtocolError(err error) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	cb.ProtocolFailure(err)
}

// FireTransportError invokes OnTransportError.
func (m *MockTransport) FireTransportError(err error) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	cb.TransportFailure(err)
}

// Deliver hands body to every handler subscribed to destination, as if the
// broker had sent a frame. It returns an error when nothing is subscribed.
func (m *MockTransport) Deliver(destination string, body []byte) error {
	m.mu.Lock()
	handlers := append([]func([]byte){}, m.subs[destination]...)
	m.mu.Unlock()
	if len(handlers) == 0 {
		return fmt.Errorf("mock transport: no subscription for %s", destination)
	}
	for _, h := range handlers {
		h(body)
	}
	return nil
}

// SetPublishError makes subsequent Publish calls fail with err.
func (m *MockTransport) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// ConnectCount returns how many times Connect was called.
func (m *MockTransport) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// DisconnectCount returns how many times Disconnect was called.
func (m *MockTransport) DisconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// Subscribed returns destinations passed to Subscribe, in call order.
func (m *MockTransport) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.subscribed))
	copy(out, m.subscribed)
	return out
}

// AllPublished returns a copy of all published messages.
func (m *MockTransport) AllPublished() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.published))
	copy(out, m.published)
	return out
}
