// Package render splits message text into presentational spans. Persisted
// messages keep their original text; formatting is derived at display time and
// always produced as structured spans, never by substituting markup.
package render

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/comigor/chatrelay/internal/message"
)

// Kind is the presentational role of a span.
type Kind int

const (
	Plain Kind = iota
	Bold
	Italic
	URL
)

func (k Kind) String() string {
	switch k {
	case Bold:
		return "bold"
	case Italic:
		return "italic"
	case URL:
		return "url"
	default:
		return "plain"
	}
}

// Span is a run of text with one presentational role. URL spans carry the
// target in Href.
type Span struct {
	Kind Kind
	Text string
	Href string
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"']+`)
	boldPattern   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern = regexp.MustCompile(`\*([^*]+)\*`)
)

// Spans splits text into plain, bold, italic and URL spans. Bare URLs are
// detected first so emphasis markers inside a URL are left alone.
func Spans(text string) []Span {
	var out []Span
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], trimURLEnd(text, loc[0], loc[1])
		out = append(out, emphasis(text[last:start])...)
		link := text[start:end]
		out = append(out, Span{Kind: URL, Text: link, Href: link})
		last = end
	}
	out = append(out, emphasis(text[last:])...)
	return out
}

// trimURLEnd drops trailing punctuation that usually ends the sentence rather
// than the URL.
func trimURLEnd(text string, start, end int) int {
	for end > start {
		switch text[end-1] {
		case '.', ',', ';', ':', '!', '?', ')', ']':
			end--
			continue
		}
		break
	}
	return end
}

func emphasis(text string) []Span {
	if text == "" {
		return nil
	}
	var out []Span
	last := 0
	for _, loc := range boldPattern.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, italics(text[last:loc[0]])...)
		out = append(out, Span{Kind: Bold, Text: text[loc[2]:loc[3]]})
		last = loc[1]
	}
	return append(out, italics(text[last:])...)
}

func italics(text string) []Span {
	if text == "" {
		return nil
	}
	var out []Span
	last := 0
	for _, loc := range italicPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			out = append(out, Span{Kind: Plain, Text: text[last:loc[0]]})
		}
		out = append(out, Span{Kind: Italic, Text: text[loc[2]:loc[3]]})
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, Span{Kind: Plain, Text: text[last:]})
	}
	return out
}

// SegmentSpans renders a whole segment list. Link segments become a single URL
// span labelled with the segment label.
func SegmentSpans(segs []message.Segment) []Span {
	var out []Span
	for _, seg := range segs {
		switch seg.Type {
		case message.SegmentLink:
			out = append(out, Span{Kind: URL, Text: seg.Label, Href: seg.URL})
		default:
			out = append(out, Spans(seg.Value)...)
		}
	}
	return out
}

// Sanitize removes control characters other than newline and tab so that
// untrusted text cannot drive the terminal.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
