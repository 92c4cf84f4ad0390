// Package chat defines the message value exchanged with the broker and the
// history endpoint, along with its wire codec.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Type is the kind of a chat event.
type Type string

const (
	Join  Type = "JOIN"
	Leave Type = "LEAVE"
	Chat  Type = "CHAT"
)

var validate = validator.New()

// Message is an immutable chat event, either loaded from history or
// received live. Its position in a transcript is its only ordering.
type Message struct {
	Sender  string `json:"sender" validate:"required"`
	Content string `json:"content,omitempty" validate:"required_if=Type CHAT"`
	Type    Type   `json:"type" validate:"required,oneof=JOIN LEAVE CHAT"`
}

// NewJoin returns the presence announcement for sender.
func NewJoin(sender string) Message {
	return Message{Sender: sender, Type: Join}
}

// NewChat returns a chat message from sender.
func NewChat(sender, content string) Message {
	return Message{Sender: sender, Content: content, Type: Chat}
}

// Validate checks required fields for the message type.
func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	if strings.TrimSpace(m.Sender) == "" {
		return fmt.Errorf("sender is blank")
	}
	if m.Type == Chat && strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("content is blank")
	}
	return nil
}

// DecodeError reports a payload that could not be turned into a Message.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("chat: decode %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one JSON payload into a validated Message. Content on
// non-CHAT events is dropped. Fields other than sender, content and type
// are ignored.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, &DecodeError{Payload: truncate(data), Err: err}
	}
	return normalize(m, data)
}

// DecodeList parses a JSON array of messages, as served by the history
// endpoint. Any invalid entry fails the whole list.
func DecodeList(data []byte) ([]Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Payload: truncate(data), Err: err}
	}
	msgs := make([]Message, 0, len(raw))
	for i, r := range raw {
		m, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("chat: entry %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Encode validates m and returns its wire form.
func Encode(m Message) ([]byte, error) {
	if m.Type != Chat {
		m.Content = ""
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("chat: encode: %w", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("chat: encode: %w", err)
	}
	return data, nil
}

func normalize(m Message, data []byte) (Message, error) {
	if m.Type != Chat {
		m.Content = ""
	}
	if err := m.Validate(); err != nil {
		return Message{}, &DecodeError{Payload: truncate(data), Err: err}
	}
	return m, nil
}

// truncate keeps error messages readable for oversized payloads.
func truncate(data []byte) string {
	const limit = 120
	if len(data) <= limit {
		return string(data)
	}
	return string(data[:limit]) + "..."
}
