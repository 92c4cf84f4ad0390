// Package transcript holds the ordered, append-only sequence of chat
// messages shown for a session.
package transcript

import (
	"sync"

	"github.com/zulandar/switchboard/internal/chat"
)

// Event describes a change to the Store.
type Event struct {
	Seeded  bool         // true when the whole transcript was replaced
	Message chat.Message // the appended message; zero when Seeded
	Len     int          // transcript length after the change
}

// Store is an ordered sequence of messages. Messages are only ever added at
// the end; Seed is the sole way to discard them.
type Store struct {
	mu        sync.Mutex
	msgs      []chat.Message
	observers map[int]func(Event)
	nextID    int
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{observers: make(map[int]func(Event))}
}

// Seed replaces the contents with a copy of snapshot.
func (s *Store) Seed(snapshot []chat.Message) {
	s.mu.Lock()
	s.msgs = make([]chat.Message, len(snapshot), len(snapshot)+16)
	copy(s.msgs, snapshot)
	ev := Event{Seeded: true, Len: len(s.msgs)}
	obs := s.observerList()
	s.mu.Unlock()

	notify(obs, ev)
}

// Append adds m to the end.
func (s *Store) Append(m chat.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	ev := Event{Message: m, Len: len(s.msgs)}
	obs := s.observerList()
	s.mu.Unlock()

	notify(obs, ev)
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Subscribe registers fn to be called after every Seed and Append, on the
// goroutine making the change. Observers may read the Store. The returned
// func removes the observer.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observers == nil {
		s.observers = make(map[int]func(Event))
	}
	id := s.nextID
	s.nextID++
	s.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// observerList returns observers in registration order. Caller holds mu.
func (s *Store) observerList() []func(Event) {
	if len(s.observers) == 0 {
		return nil
	}
	out := make([]func(Event), 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.observers[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(obs []func(Event), ev Event) {
	for _, fn := range obs {
		fn(ev)
	}
}
