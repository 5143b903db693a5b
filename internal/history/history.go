// Package history keeps the ordered conversation log and persists it as one
// JSON document under a single storage key. Every append rewrites the whole
// document; a document that fails to parse is discarded as a whole.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/comigor/chatrelay/internal/message"
	"github.com/comigor/chatrelay/internal/storage"
)

// DefaultWindow is the number of messages sent along with each request.
const DefaultWindow = 10

// ErrCorrupt is returned by Load when the persisted history was discarded.
var ErrCorrupt = errors.New("persisted history is corrupt")

// Store is an append-only message log backed by a storage key. It is not safe
// for concurrent use; the conversation controller serialises access.
type Store struct {
	storage  storage.Storage
	key      string
	messages []message.Message
}

// New returns an empty store persisting under key.
func New(s storage.Storage, key string) *Store {
	return &Store{storage: s, key: key}
}

// Append adds msg to the log and writes the whole log back. The in-memory
// log keeps msg even when the write fails; the error only reports the write.
func (s *Store) Append(msg message.Message) error {
	s.messages = append(s.messages, msg)
	data, err := json.Marshal(s.messages)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.storage.Set(s.key, string(data)); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// Load replaces the in-memory log with the persisted one. An absent key leaves
// the log empty. A payload that is not a well-formed message list is removed
// from storage, the log is reset to empty and ErrCorrupt is returned.
func (s *Store) Load() error {
	s.messages = nil
	raw, ok, err := s.storage.Get(s.key)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	msgs, err := decode(raw)
	if err != nil {
		cause := fmt.Errorf("%w: %v", ErrCorrupt, err)
		if rmErr := s.storage.Remove(s.key); rmErr != nil {
			return errors.Join(cause, fmt.Errorf("remove corrupt history: %w", rmErr))
		}
		return cause
	}
	s.messages = msgs
	return nil
}

// Replay feeds every message to sink in conversation order.
func (s *Store) Replay(sink func(message.Message)) {
	for _, m := range s.messages {
		sink(m)
	}
}

// RecentWindow returns a copy of the last n messages, or all of them when
// fewer exist. n <= 0 means DefaultWindow.
func (s *Store) RecentWindow(n int) []message.Message {
	if n <= 0 {
		n = DefaultWindow
	}
	start := max(len(s.messages)-n, 0)
	out := make([]message.Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// Messages returns a copy of the whole log.
func (s *Store) Messages() []message.Message {
	out := make([]message.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len reports the number of messages in the log.
func (s *Store) Len() int {
	return len(s.messages)
}

// record is the persisted form of a message. Text is the pre-segment format,
// which held the whole message as one string.
type record struct {
	Sender    message.Sender    `json:"sender"`
	Timestamp *string           `json:"timestamp"`
	Content   []message.Segment `json:"content"`
	Text      *string           `json:"text"`
}

func decode(raw string) ([]message.Message, error) {
	var records []*record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, err
	}
	msgs := make([]message.Message, 0, len(records))
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("entry %d is null", i)
		}
		if r.Timestamp == nil {
			return nil, fmt.Errorf("entry %d: missing timestamp", i)
		}
		ts, err := time.Parse(time.RFC3339Nano, *r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		content := r.Content
		if content == nil && r.Text != nil {
			content = []message.Segment{message.Text(*r.Text)}
		}
		m := message.Message{Sender: r.Sender, Timestamp: ts.UTC(), Content: content}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
