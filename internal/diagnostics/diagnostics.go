// Package diagnostics records errors that a chat session handles without
// surfacing them: broker ERROR frames, connection failures, rejected
// frames and failed publishes.
package diagnostics

import (
	"log"
	"sync"
	"time"
)

// Kind classifies a diagnostic record.
type Kind string

const (
	KindHistory   Kind = "history"
	KindProtocol  Kind = "protocol"
	KindTransport Kind = "transport"
	KindDecode    Kind = "decode"
	KindPublish   Kind = "publish"
)

// Record is one recorded error.
type Record struct {
	Kind     Kind
	Username string
	Message  string
	At       time.Time
}

// Recorder receives diagnostic records. Implementations must be safe for
// concurrent use. Callers never hold locks while recording, so an
// implementation may block on I/O.
type Recorder interface {
	Record(r Record)
}

// New builds a Record for err, stamped now.
func New(kind Kind, username string, err error) Record {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Record{Kind: kind, Username: username, Message: msg, At: time.Now()}
}

// Logger writes each record with the standard logger.
type Logger struct{}

// Record logs r.
func (Logger) Record(r Record) {
	log.Printf("diagnostics: %s: %s", r.Kind, r.Message)
}

// Multi fans a record out to several recorders.
type Multi []Recorder

// Record forwards r to every non-nil recorder.
func (m Multi) Record(r Record) {
	for _, rec := range m {
		if rec != nil {
			rec.Record(r)
		}
	}
}

// Memory keeps records in memory. Useful in tests and as a bounded
// in-process buffer.
type Memory struct {
	mu      sync.Mutex
	records []Record
	limit   int
}

// NewMemory returns a Memory keeping at most limit records (0 = unbounded).
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Record stores r, evicting the oldest record when full.
func (m *Memory) Record(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if m.limit > 0 && len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}
}

// All returns a copy of the stored records, oldest first.
func (m *Memory) All() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// OfKind returns stored records of kind k, oldest first.
func (m *Memory) OfKind(k Kind) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}
