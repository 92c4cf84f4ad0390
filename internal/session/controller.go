// Package session coordinates a chat session: it loads history, owns the
// broker connection, and merges live events into the transcript.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/zulandar/switchboard/internal/chat"
	"github.com/zulandar/switchboard/internal/diagnostics"
	"github.com/zulandar/switchboard/internal/transcript"
	"github.com/zulandar/switchboard/internal/transport"
)

// Default broker destinations.
const (
	DefaultTopic           = "/topic/public"
	DefaultJoinDestination = "/app/chat.addUser"
	DefaultChatDestination = "/app/chat.sendMessage"
)

// HistoryLoader fetches the transcript snapshot.
type HistoryLoader interface {
	Fetch(ctx context.Context) ([]chat.Message, error)
}

// Channels names the broker destinations a session uses.
type Channels struct {
	Topic string // subscribed broadcast channel
	Join  string // presence announcements
	Chat  string // chat messages
}

func (c Channels) withDefaults() Channels {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Join == "" {
		c.Join = DefaultJoinDestination
	}
	if c.Chat == "" {
		c.Chat = DefaultChatDestination
	}
	return c
}

// handle is one connection owned by the Controller. Callbacks carry the
// handle that created them so events from a released handle can be told
// apart from the live one.
type handle struct {
	t transport.Transport
}

// Controller is the session state machine. All methods are safe for
// concurrent use; operations and transport callbacks are serialised.
//
// Observers registered with OnStateChange, and transcript observers, run
// while the Controller holds its lock and must not call Controller methods.
type Controller struct {
	mu        sync.Mutex
	state     State
	username  string
	cycle     uint64
	handle    *handle
	loader    HistoryLoader
	factory   transport.Factory
	store     *transcript.Store
	recorder  diagnostics.Recorder
	channels  Channels
	observers map[int]func(Transition)
	nextObs   int
	pending   []diagnostics.Record
}

// Opts holds parameters for creating a Controller.
type Opts struct {
	Loader    HistoryLoader        // required
	Transport transport.Factory    // required
	Store     *transcript.Store    // defaults to a new empty store
	Recorder  diagnostics.Recorder // defaults to diagnostics.Logger
	Channels  Channels             // empty fields use the defaults
}

// New creates a Controller in the Idle state.
func New(opts Opts) (*Controller, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("session: history loader is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("session: transport factory is required")
	}
	store := opts.Store
	if store == nil {
		store = transcript.NewStore()
	}
	rec := opts.Recorder
	if rec == nil {
		rec = diagnostics.Logger{}
	}
	return &Controller{
		state:     Idle,
		loader:    opts.Loader,
		factory:   opts.Transport,
		store:     store,
		recorder:  rec,
		channels:  opts.Channels.withDefaults(),
		observers: make(map[int]func(Transition)),
	}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the identity of the current or last session.
func (c *Controller) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Transcript returns the store holding the session's messages.
func (c *Controller) Transcript() *transcript.Store {
	return c.store
}

// OnStateChange registers fn for every state transition. The returned func
// removes it.
func (c *Controller) OnStateChange(fn func(Transition)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// Connect starts a session as username. It loads history synchronously and
// returns its error, then starts the transport and returns without waiting
// for the handshake. A blank username fails with *ValidationError before
// any I/O. Calling Connect while a session is loading, connecting or
// connected does nothing.
func (c *Controller) Connect(ctx context.Context, username string) error {
	name := strings.TrimSpace(username)
	if name == "" {
		return &ValidationError{Field: "username", Reason: "must not be empty"}
	}

	c.mu.Lock()
	if !c.state.canStart() {
		state := c.state
		c.mu.Unlock()
		log.Printf("session: connect ignored in state %s", state)
		return nil
	}
	// A remotely dropped connection may still be retrying; only one handle
	// may exist, so release it before starting over.
	stale := c.handle
	c.handle = nil
	c.cycle++
	cycle := c.cycle
	c.username = name
	c.setState(LoadingHistory)
	c.mu.Unlock()

	if stale != nil {
		stale.t.Disconnect()
	}

	snapshot, err := c.loader.Fetch(ctx)

	c.mu.Lock()
	defer c.unlock()

	if c.cycle != cycle || c.state != LoadingHistory {
		// Torn down while loading.
		log.Printf("session: history for %s arrived after teardown; discarded", name)
		if err != nil {
			c.record(diagnostics.KindHistory, err)
		}
		return nil
	}
	if err != nil {
		c.record(diagnostics.KindHistory, err)
		c.setState(Idle)
		return err
	}

	c.store.Seed(snapshot)
	c.setState(Connecting)

	h := &handle{}
	h.t = c.factory(transport.Callbacks{
		OnConnected:      func() { c.onConnected(h) },
		OnDisconnected:   func() { c.onDisconnected(h) },
		OnProtocolError:  func(err error) { c.onError(h, diagnostics.KindProtocol, err) },
		OnTransportError: func(err error) { c.onError(h, diagnostics.KindTransport, err) },
	})
	c.handle = h
	h.t.Connect()
	return nil
}

// SendMessage publishes content as a chat message. It reports false and
// publishes nothing unless the session is connected and content is not
// blank. Publish failures are recorded, not returned.
func (c *Controller) SendMessage(content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}

	c.mu.Lock()
	defer c.unlock()
	if c.state != Connected || c.handle == nil {
		return false
	}
	c.publish(c.handle, c.channels.Chat, chat.NewChat(c.username, content))
	return true
}

// Disconnect releases the connection if one is held. It is safe to call at
// any time and any number of times.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	if h == nil && c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.cycle++
	c.setState(Disconnected)
	c.mu.Unlock()

	if h != nil {
		h.t.Disconnect()
	}
}

func (c *Controller) onConnected(h *handle) {
	c.mu.Lock()
	defer c.unlock()

	if c.handle != h {
		log.Printf("session: connected callback from released connection ignored")
		return
	}
	if c.state != Connecting && c.state != Disconnected {
		log.Printf("session: connected callback ignored in state %s", c.state)
		return
	}
	c.setState(Connected)

	if err := h.t.Subscribe(c.channels.Topic, func(body []byte) { c.onFrame(h, body) }); err != nil {
		c.record(diagnostics.KindTransport, fmt.Errorf("subscribe %s: %w", c.channels.Topic, err))
	}
	c.publish(h, c.channels.Join, chat.NewJoin(c.username))
}

func (c *Controller) onDisconnected(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != h {
		return
	}
	if c.state == Connected || c.state == Connecting {
		c.setState(Disconnected)
	}
}

func (c *Controller) onError(h *handle, kind diagnostics.Kind, err error) {
	c.mu.Lock()
	defer c.unlock()
	if c.handle != h {
		log.Printf("session: %s error from released connection: %v", kind, err)
		return
	}
	c.record(kind, err)
}

func (c *Controller) onFrame(h *handle, body []byte) {
	c.mu.Lock()
	defer c.unlock()

	if c.handle != h {
		return
	}
	msg, err := chat.Decode(body)
	if err != nil {
		c.record(diagnostics.KindDecode, err)
		return
	}
	c.store.Append(msg)
}

// publish encodes and sends m on h. Caller holds mu.
func (c *Controller) publish(h *handle, destination string, m chat.Message) {
	body, err := chat.Encode(m)
	if err != nil {
		c.record(diagnostics.KindPublish, err)
		return
	}
	if err := h.t.Publish(destination, body); err != nil {
		c.record(diagnostics.KindPublish, fmt.Errorf("publish %s: %w", destination, err))
	}
}

// record queues err for the recorder. Caller holds mu and releases it with
// unlock.
func (c *Controller) record(kind diagnostics.Kind, err error) {
	c.pending = append(c.pending, diagnostics.New(kind, c.username, err))
}

// unlock releases mu, then hands queued records to the recorder so a slow
// recorder never delays frames or sends.
func (c *Controller) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, r := range pending {
		c.recorder.Record(r)
	}
}

// setState moves to s and notifies observers. Caller holds mu.
func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	t := Transition{From: c.state, To: s}
	c.state = s
	for id := 0; id < c.nextObs; id++ {
		if fn, ok := c.observers[id]; ok {
			fn(t)
		}
	}
}
