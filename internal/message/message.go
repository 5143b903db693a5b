// Package message defines the canonical conversation model and the normalizer
// that turns loosely shaped webhook replies into it.
package message

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// SegmentType discriminates Segment variants.
type SegmentType string

const (
	SegmentText SegmentType = "text"
	SegmentLink SegmentType = "link"
)

// Segment is one renderable fragment of a message. Text segments carry Value;
// link segments carry URL and Label. The JSON form matches what the webhook
// sends in segment arrays.
type Segment struct {
	Type  SegmentType `json:"type"`
	Value string      `json:"content,omitempty"`
	URL   string      `json:"url,omitempty"`
	Label string      `json:"text,omitempty"`
}

// Text builds a text segment.
func Text(value string) Segment {
	return Segment{Type: SegmentText, Value: validUTF8(value)}
}

// Link builds a link segment. An empty label shows the URL itself.
func Link(rawURL, label string) Segment {
	rawURL, label = validUTF8(rawURL), validUTF8(label)
	if strings.TrimSpace(label) == "" {
		label = rawURL
	}
	return Segment{Type: SegmentLink, URL: rawURL, Label: label}
}

// validUTF8 replaces invalid byte sequences with U+FFFD, which is what JSON
// encoding would do on save, so a message reloads exactly as it was created.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

var (
	errEmptyText   = errors.New("text segment has no content")
	errEmptyURL    = errors.New("link segment has no url")
	errUnsafeURL   = errors.New("link segment url scheme not allowed")
	errUnknownType = errors.New("unknown segment type")
)

// Validate checks the segment against its variant's requirements.
func (s Segment) Validate() error {
	switch s.Type {
	case SegmentText:
		if strings.TrimSpace(s.Value) == "" {
			return errEmptyText
		}
		return nil
	case SegmentLink:
		if strings.TrimSpace(s.URL) == "" {
			return errEmptyURL
		}
		if !SafeURL(s.URL) {
			return errUnsafeURL
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownType, s.Type)
	}
}

// SafeURL reports whether u is an absolute http, https or mailto URL.
func SafeURL(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return parsed.Host != ""
	case "mailto":
		return parsed.Opaque != ""
	default:
		return false
	}
}

// Message is the canonical, storage-ready representation of one turn.
type Message struct {
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Content   []Segment `json:"content"`
}

// New builds a message stamped at the given instant, normalised to UTC.
func New(sender Sender, at time.Time, content ...Segment) Message {
	return Message{Sender: sender, Timestamp: at.UTC(), Content: content}
}

// Validate reports the first reason m is not a well-formed message.
func (m Message) Validate() error {
	if !m.Sender.Valid() {
		return fmt.Errorf("unknown sender %q", m.Sender)
	}
	if m.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}
	if len(m.Content) == 0 {
		return errors.New("empty content")
	}
	for i, seg := range m.Content {
		if err := seg.Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return nil
}

// PlainText flattens the content into one line of text. Links render as
// "label (url)", or just the url when the label repeats it.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, seg := range m.Content {
		var piece string
		switch seg.Type {
		case SegmentLink:
			if seg.Label == "" || seg.Label == seg.URL {
				piece = seg.URL
			} else {
				piece = seg.Label + " (" + seg.URL + ")"
			}
		default:
			piece = seg.Value
		}
		if piece == "" {
			continue
		}
		if b.Len() > 0 && !endsWithSpace(b.String()) && !startsWithSpace(piece) {
			b.WriteByte(' ')
		}
		b.WriteString(piece)
	}
	return b.String()
}

func endsWithSpace(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size > 0 && unicode.IsSpace(r)
}
