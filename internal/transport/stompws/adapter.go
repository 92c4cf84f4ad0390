// Package stompws implements transport.Transport as STOMP over WebSocket.
package stompws

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/zulandar/switchboard/internal/transport"
)

const (
	// DefaultReconnectDelay is the fixed wait between reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultHeartbeat is used for both directions when not configured.
	DefaultHeartbeat = 10 * time.Second
	// disconnectTimeout bounds the wait for the broker's DISCONNECT receipt.
	disconnectTimeout = 2 * time.Second

	contentTypeJSON = "application/json"
)

// subprotocols are offered during the WebSocket handshake.
var subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Adapter is one STOMP connection handle. After Connect it keeps the
// connection up, reconnecting after a fixed delay whenever it drops, until
// Disconnect is called.
type Adapter struct {
	url               string
	host              string
	reconnectDelay    time.Duration
	heartbeatSend     time.Duration
	heartbeatRecv     time.Duration
	disconnectTimeout time.Duration
	dialer            *websocket.Dialer
	cb                transport.Callbacks

	mu      sync.Mutex
	conn    *stomp.Conn
	ws      *wsConn
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// AdapterOpts holds parameters for creating an Adapter.
type AdapterOpts struct {
	ServerURL      string        // e.g. "http://localhost:8080"
	Endpoint       string        // e.g. "/ws"
	SockJS         bool          // append the SockJS raw WebSocket suffix
	ReconnectDelay time.Duration // defaults to DefaultReconnectDelay
	HeartbeatSend  time.Duration // 0 uses DefaultHeartbeat; negative disables
	HeartbeatRecv  time.Duration // 0 uses DefaultHeartbeat; negative disables
	Dialer         *websocket.Dialer
}

// EndpointURL derives the WebSocket URL from the server URL and endpoint
// path. http and https map to ws and wss. With sockjs set, "/websocket" is
// appended, which is where SockJS servers accept raw WebSocket clients.
func EndpointURL(serverURL, endpoint string, sockjs bool) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("stompws: parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("stompws: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("stompws: server url %q has no host", serverURL)
	}
	path := strings.TrimRight(u.Path, "/")
	if endpoint != "" {
		path += "/" + strings.Trim(endpoint, "/")
	}
	if sockjs {
		path += "/websocket"
	}
	u.Path = path
	return u.String(), nil
}

// New creates an Adapter reporting to cb. It does not connect.
func New(opts AdapterOpts, cb transport.Callbacks) (*Adapter, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("stompws: server url is required")
	}
	endpoint, err := EndpointURL(opts.ServerURL, opts.Endpoint, opts.SockJS)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(endpoint)

	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	if len(dialer.Subprotocols) == 0 {
		dialer.Subprotocols = subprotocols
	}

	return &Adapter{
		url:               endpoint,
		host:              u.Hostname(),
		reconnectDelay:    delay,
		heartbeatSend:     heartbeat(opts.HeartbeatSend),
		heartbeatRecv:     heartbeat(opts.HeartbeatRecv),
		disconnectTimeout: disconnectTimeout,
		dialer:            dialer,
		cb:                cb,
	}, nil
}

// Factory validates opts once and returns a transport.Factory creating a
// fresh Adapter per connection handle.
func Factory(opts AdapterOpts) (transport.Factory, error) {
	if _, err := New(opts, transport.Callbacks{}); err != nil {
		return nil, err
	}
	return func(cb transport.Callbacks) transport.Transport {
		a, err := New(opts, cb)
		if err != nil {
			// opts were validated above.
			panic(err)
		}
		return a
	}, nil
}

func heartbeat(d time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d == 0:
		return DefaultHeartbeat
	default:
		return d
	}
}

// URL returns the WebSocket URL the adapter dials.
func (a *Adapter) URL() string { return a.url }

// Connect starts the connection loop in the background. Subsequent calls,
// and calls after Disconnect, do nothing.
func (a *Adapter) Connect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.started {
		return
	}
	a.started = true
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx)
}

// Subscribe subscribes to destination with automatic acknowledgement. The
// handler runs on one goroutine per subscription, in delivery order. The
// subscription ends with the connection.
func (a *Adapter) Subscribe(destination string, handler func([]byte)) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return transport.ErrNotConnected
	}
	sub, err := conn.Subscribe(destination, stomp.AckAuto)
	if err != nil {
		return &transport.TransportError{Op: "subscribe", Err: err}
	}
	go a.pump(destination, sub, handler)
	return nil
}

// Publish sends body to destination as JSON.
func (a *Adapter) Publish(destination string, body []byte) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return transport.ErrNotConnected
	}
	if err := conn.Send(destination, contentTypeJSON, body); err != nil {
		return &transport.TransportError{Op: "send", Err: err}
	}
	return nil
}

// Disconnect stops reconnecting and closes the connection gracefully. It
// blocks until the connection loop has exited.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	cancel, done := a.cancel, a.done
	conn, ws := a.conn, a.ws
	a.conn, a.ws = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		a.closeGracefully(conn, ws)
	}
	if done != nil {
		<-done
	}
	if conn != nil {
		a.cb.Disconnected()
	}
}

func (a *Adapter) closeGracefully(conn *stomp.Conn, ws *wsConn) {
	result := make(chan error, 1)
	go func() { result <- conn.Disconnect() }()
	select {
	case err := <-result:
		if err != nil {
			log.Printf("stompws: disconnect: %v", err)
		}
	case <-time.After(a.disconnectTimeout):
		log.Printf("stompws: disconnect: no receipt after %s", a.disconnectTimeout)
	}
	ws.Close()
}

// run keeps a connection established until ctx is cancelled.
func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)
	for {
		ws, conn, err := a.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.cb.TransportFailure(err)
		} else {
			a.mu.Lock()
			if a.closed {
				a.mu.Unlock()
				ws.Close()
				return
			}
			a.conn, a.ws = conn, ws
			a.mu.Unlock()

			a.cb.Connected()

			select {
			case <-ctx.Done():
				return
			case <-ws.Lost():
			}

			a.mu.Lock()
			if a.ws == ws {
				a.conn, a.ws = nil, nil
			}
			a.mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			ws.Close()
			a.cb.TransportFailure(&transport.TransportError{Op: "read", Err: ws.Err()})
			a.cb.Disconnected()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.reconnectDelay):
		}
	}
}

// dial opens the WebSocket and performs the STOMP handshake.
func (a *Adapter) dial(ctx context.Context) (*wsConn, *stomp.Conn, error) {
	raw, _, err := a.dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return nil, nil, &transport.TransportError{Op: "dial", Err: err}
	}
	ws := newWSConn(raw)

	// The handshake blocks on a read; closing the socket unblocks it.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()
	conn, err := stomp.Connect(ws,
		stomp.ConnOpt.Host(a.host),
		stomp.ConnOpt.HeartBeat(a.heartbeatSend, a.heartbeatRecv),
	)
	close(stop)
	if err != nil {
		ws.Close()
		return nil, nil, &transport.TransportError{Op: "handshake", Err: err}
	}
	return ws, conn, nil
}

// pump delivers subscription messages to handler until the subscription
// ends.
func (a *Adapter) pump(destination string, sub *stomp.Subscription, handler func([]byte)) {
	for msg := range sub.C {
		if msg.Err != nil {
			if pe := protocolError(msg); pe != nil {
				a.cb.ProtocolFailure(pe)
			} else {
				log.Printf("stompws: subscription %s ended: %v", destination, msg.Err)
			}
			return
		}
		handler(msg.Body)
	}
}

// localCloseMessages are the "message" headers go-stomp puts on the ERROR
// frames it synthesises when the socket closes. They are connection loss,
// which run reports as a transport error.
var localCloseMessages = map[string]bool{
	"connection closed":              true,
	"connection closed unexpectedly": true,
}

// protocolError extracts an ERROR frame sent by the broker from a failed
// message. It returns nil for errors raised by the client itself.
func protocolError(msg *stomp.Message) *transport.ProtocolError {
	if msg.Header == nil {
		return nil
	}
	text := msg.Header.Get(frame.Message)
	if localCloseMessages[text] && len(msg.Body) == 0 {
		return nil
	}
	if text == "" {
		text = msg.Err.Error()
	}
	return &transport.ProtocolError{
		Message: text,
		Details: strings.TrimSpace(string(msg.Body)),
	}
}
