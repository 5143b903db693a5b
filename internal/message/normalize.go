package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// DefaultFallback is shown when a reply carries nothing displayable.
const DefaultFallback = "No se recibió una respuesta válida."

// maxDepth bounds how many times a string reply may unwrap into JSON.
const maxDepth = 4

var (
	// segmentFields are probed, in order, for an array of segment objects.
	segmentFields = []string{"reply", "segments", "content", "messages", "output"}
	// textFields are probed, in order, for a plain reply string.
	textFields = []string{"reply", "text", "output"}
)

// Reply is the decoded shape of a webhook response. The concrete type says
// which rule recognised it: SegmentReply, RecordReply, FieldReply,
// LiteralReply or FallbackReply.
type Reply interface {
	segments(fallback string) []Segment
}

// SegmentReply is a validated array of typed segments.
type SegmentReply struct {
	Segments []Segment
}

// RecordReply is the text resolved from the first record of an array reply.
type RecordReply struct {
	Text string
}

// FieldReply is a plain string found under one of the known object fields.
type FieldReply struct {
	Field string
	Text  string
}

// LiteralReply is a raw string that did not decode into anything structured.
type LiteralReply struct {
	Text string
}

// FallbackReply means no displayable content was found.
type FallbackReply struct{}

func (r SegmentReply) segments(fallback string) []Segment {
	if len(r.Segments) == 0 {
		return []Segment{Text(fallback)}
	}
	out := make([]Segment, len(r.Segments))
	copy(out, r.Segments)
	return out
}

func (r RecordReply) segments(fallback string) []Segment  { return single(r.Text, fallback) }
func (r FieldReply) segments(fallback string) []Segment   { return single(r.Text, fallback) }
func (r LiteralReply) segments(fallback string) []Segment { return single(r.Text, fallback) }
func (FallbackReply) segments(fallback string) []Segment  { return []Segment{Text(fallback)} }

func single(text, fallback string) []Segment {
	if strings.TrimSpace(text) == "" {
		text = fallback
	}
	return []Segment{Text(text)}
}

// Normalizer converts arbitrary reply values into a non-empty segment list.
// The zero value uses DefaultFallback.
type Normalizer struct {
	Fallback string
}

// Normalize decodes v and renders it into segments. It never returns an empty
// slice.
func (n Normalizer) Normalize(v any) []Segment {
	return Decode(v).segments(n.fallback())
}

// NormalizeBody normalizes a raw response body. The body is handled as a
// string so that non-JSON replies still come through as literal text.
func (n Normalizer) NormalizeBody(body []byte) []Segment {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	return n.Normalize(validUTF8(string(body)))
}

func (n Normalizer) fallback() string {
	if strings.TrimSpace(n.Fallback) == "" {
		return DefaultFallback
	}
	return n.Fallback
}

// Normalize is Normalizer{}.Normalize.
func Normalize(v any) []Segment {
	return Normalizer{}.Normalize(v)
}

// Decode classifies v. Rules apply in priority order and the first match wins:
// typed segment arrays, arrays of records, known text fields, strings that
// hold JSON, and finally the fallback.
func Decode(v any) Reply {
	return decode(v, 0)
}

func decode(v any, depth int) Reply {
	switch val := v.(type) {
	case nil:
		return FallbackReply{}
	case map[string]any:
		for _, field := range segmentFields {
			if arr, ok := val[field].([]any); ok {
				if segs, ok := segmentArray(arr); ok {
					return SegmentReply{Segments: segs}
				}
			}
		}
		for _, field := range textFields {
			if s, ok := val[field].(string); ok && strings.TrimSpace(s) != "" {
				return FieldReply{Field: field, Text: strings.TrimSpace(s)}
			}
		}
		return FallbackReply{}
	case []any:
		if segs, ok := segmentArray(val); ok {
			return SegmentReply{Segments: segs}
		}
		if len(val) == 0 {
			return FallbackReply{}
		}
		return recordReply(val[0])
	case string:
		return decodeString(val, depth)
	case json.RawMessage:
		return decodeString(string(val), depth)
	case []byte:
		return decodeString(string(val), depth)
	case bool, float64, json.Number:
		return FallbackReply{}
	default:
		// Typed Go values go through JSON once to reach the generic shapes.
		if depth >= maxDepth {
			return FallbackReply{}
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return FallbackReply{}
		}
		generic, err := decodeJSON(string(raw))
		if err != nil {
			return FallbackReply{}
		}
		return decode(generic, depth+1)
	}
}

func decodeString(s string, depth int) Reply {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return FallbackReply{}
	}
	if depth < maxDepth && looksStructured(trimmed) {
		if parsed, err := decodeJSON(trimmed); err == nil {
			return decode(parsed, depth+1)
		}
	}
	return LiteralReply{Text: trimmed}
}

func looksStructured(s string) bool {
	if s == "null" {
		return true
	}
	switch s[0] {
	case '{', '[', '"':
		return true
	}
	return false
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func recordReply(first any) Reply {
	if rec, ok := first.(map[string]any); ok {
		if body, ok := rec["body"].(map[string]any); ok {
			if s, ok := body["Respuesta"].(string); ok && strings.TrimSpace(s) != "" {
				return RecordReply{Text: strings.TrimSpace(s)}
			}
		}
		if s, ok := rec["Respuesta"].(string); ok && strings.TrimSpace(s) != "" {
			return RecordReply{Text: strings.TrimSpace(s)}
		}
	}
	raw, err := json.Marshal(first)
	if err != nil {
		return FallbackReply{}
	}
	return RecordReply{Text: string(raw)}
}

// segmentArray keeps the valid segment entries of arr. It reports false when
// arr holds no segment-like entry or none of them survive validation.
func segmentArray(arr []any) ([]Segment, bool) {
	var (
		out  []Segment
		seen bool
	)
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		kind, ok := obj["type"].(string)
		if !ok {
			continue
		}
		switch SegmentType(strings.ToLower(kind)) {
		case SegmentText:
			seen = true
			if s, ok := obj["content"].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, Text(s))
			}
		case SegmentLink:
			seen = true
			if seg, ok := coerceLink(obj); ok {
				out = append(out, seg)
			}
		}
	}
	if !seen || len(out) == 0 {
		return nil, false
	}
	return out, true
}

func coerceLink(obj map[string]any) (Segment, bool) {
	rawURL, ok := obj["url"].(string)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return Segment{}, false
	}
	label, ok := obj["text"].(string)
	if !ok {
		return Segment{}, false
	}
	rawURL = strings.TrimSpace(rawURL)
	if !SafeURL(rawURL) {
		if strings.TrimSpace(label) == "" {
			return Segment{}, false
		}
		return Text(label), true
	}
	return Link(rawURL, label), true
}
