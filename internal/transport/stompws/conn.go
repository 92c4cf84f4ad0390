package stompws

import (
	"errors"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// errConnectionLost is reported when the connection ends without a read
// error, e.g. after a missed heart-beat.
var errConnectionLost = errors.New("connection lost")

// wsConn presents a WebSocket as the byte stream go-stomp expects. Each
// Write becomes one text message; reads run across message boundaries.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader

	wmu sync.Mutex

	once sync.Once
	lost chan struct{}
	mu   sync.Mutex
	err  error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, lost: make(chan struct{})}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				c.markLost(err)
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			c.markLost(err)
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the socket. Safe to call more than once.
func (c *wsConn) Close() error {
	c.markLost(nil)
	return c.ws.Close()
}

// Lost is closed once the connection has ended for any reason.
func (c *wsConn) Lost() <-chan struct{} {
	return c.lost
}

// Err returns the read error that ended the connection, or
// errConnectionLost when it was closed without one.
func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return errConnectionLost
	}
	return c.err
}

func (c *wsConn) markLost(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.lost)
	})
}
