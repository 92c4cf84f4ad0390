package stompws

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeBroker speaks enough STOMP 1.2 over WebSocket for the adapter and
// session tests. Sends to /app/* are relayed to /topic/public, the way the
// chat server's message handlers do.
type fakeBroker struct {
	srv *httptest.Server

	dropFirst          bool // close the first connection right after CONNECTED
	rejectSubscribe    bool // answer SUBSCRIBE with an ERROR frame
	dropAfterSubscribe bool // close the socket without a frame after SUBSCRIBE

	mu          sync.Mutex
	connections int
	commands    []string
	live        map[*brokerConn]bool
	nextMsgID   int
}

type stompFrame struct {
	command string
	headers map[string]string
	body    string
}

// brokerConn is one client connection. subs is guarded by fakeBroker.mu.
type brokerConn struct {
	ws   *websocket.Conn
	wmu  sync.Mutex
	subs map[string]string // destination -> subscription id
}

func (c *brokerConn) write(command string, headers []string, body string) error {
	var b strings.Builder
	b.WriteString(command + "\n")
	for _, h := range headers {
		b.WriteString(h + "\n")
	}
	b.WriteString("\n" + body + "\x00")

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(b.String()))
}

func parseFrame(raw string) (stompFrame, bool) {
	raw = strings.TrimLeft(raw, "\r\n")
	if raw == "" {
		return stompFrame{}, false
	}
	head, body, _ := strings.Cut(raw, "\n\n")
	lines := strings.Split(head, "\n")
	f := stompFrame{command: strings.TrimSpace(lines[0]), headers: map[string]string{}, body: body}
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if ok {
			if _, seen := f.headers[k]; !seen {
				f.headers[k] = v
			}
		}
	}
	return f, true
}

func newFakeBroker(t *testing.T, configure func(*fakeBroker)) *fakeBroker {
	t.Helper()
	b := &fakeBroker{live: make(map[*brokerConn]bool)}
	if configure != nil {
		configure(b)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/websocket", b.handle)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) handle(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{Subprotocols: []string{"v12.stomp"}}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &brokerConn{ws: ws, subs: map[string]string{}}

	b.mu.Lock()
	b.connections++
	n := b.connections
	b.live[conn] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.live, conn)
		b.mu.Unlock()
		ws.Close()
	}()

	var buf string
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		buf += string(data)
		for {
			i := strings.IndexByte(buf, 0)
			if i < 0 {
				break
			}
			f, ok := parseFrame(buf[:i])
			buf = buf[i+1:]
			if !ok {
				continue
			}
			if !b.serve(conn, n, f) {
				return
			}
		}
	}
}

// serve handles one client frame. It reports false when the connection
// should be closed.
func (b *fakeBroker) serve(conn *brokerConn, n int, f stompFrame) bool {
	b.mu.Lock()
	b.commands = append(b.commands, f.command)
	b.mu.Unlock()

	switch f.command {
	case "CONNECT", "STOMP":
		conn.write("CONNECTED", []string{"version:1.2", "heart-beat:0,0"}, "")
		if b.dropFirst && n == 1 {
			return false
		}
	case "SUBSCRIBE":
		if b.rejectSubscribe {
			conn.write("ERROR", []string{"message:bad destination", "content-type:text/plain"}, "no such topic")
			return false
		}
		if b.dropAfterSubscribe {
			return false
		}
		b.mu.Lock()
		conn.subs[f.headers["destination"]] = f.headers["id"]
		b.mu.Unlock()
	case "SEND":
		dest := f.headers["destination"]
		if strings.HasPrefix(dest, "/app/") {
			dest = "/topic/public"
		}
		b.broadcast(dest, f.body)
	case "DISCONNECT":
		if receipt, ok := f.headers["receipt"]; ok {
			conn.write("RECEIPT", []string{"receipt-id:" + receipt}, "")
		}
		return false
	}
	return true
}

// broadcast delivers body to every live subscription on dest.
func (b *fakeBroker) broadcast(dest, body string) {
	type target struct {
		conn *brokerConn
		id   string
	}
	var targets []target
	b.mu.Lock()
	for c := range b.live {
		if id, ok := c.subs[dest]; ok {
			targets = append(targets, target{c, id})
		}
	}
	b.nextMsgID++
	msgID := b.nextMsgID
	b.mu.Unlock()

	for _, tg := range targets {
		tg.conn.write("MESSAGE", []string{
			"subscription:" + tg.id,
			fmt.Sprintf("message-id:%d", msgID),
			"destination:" + dest,
			"content-type:application/json",
		}, body)
	}
}

func (b *fakeBroker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connections
}

func (b *fakeBroker) Saw(command string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.commands {
		if c == command {
			return true
		}
	}
	return false
}
