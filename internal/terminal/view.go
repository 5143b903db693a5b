// Package terminal renders the chat widget on an ANSI terminal and reads
// user input line by line.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/comigor/chatrelay/internal/message"
	"github.com/comigor/chatrelay/internal/render"
)

const (
	ansiReset     = "\x1b[0m"
	ansiBold      = "\x1b[1m"
	ansiDim       = "\x1b[2m"
	ansiItalic    = "\x1b[3m"
	ansiUnderline = "\x1b[4m"
	ansiCyan      = "\x1b[36m"
	ansiClearLine = "\r\x1b[2K"
)

const (
	prompt        = "> "
	typingNotice  = "el asistente está escribiendo..."
	userLabel     = "tú"
	botLabel      = "bot"
	openedNotice  = "[chat abierto]"
	closedNotice  = "[chat cerrado]"
	dateSepFormat = "02/01/2006"
)

// View writes the transcript to w. With color off it emits plain text, which
// is what tests and non-tty outputs get.
type View struct {
	mu      sync.Mutex
	w       io.Writer
	loc     *time.Location
	color   bool
	loading bool
	enabled bool
}

// NewView creates a view printing times in loc.
func NewView(w io.Writer, loc *time.Location, color bool) *View {
	if loc == nil {
		loc = time.Local
	}
	return &View{w: w, loc: loc, color: color}
}

func (v *View) RenderMessage(m message.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clearTyping()

	label := userLabel
	if m.Sender == message.SenderBot {
		label = botLabel
	}
	stamp := m.Timestamp.In(v.loc).Format("15:04")
	fmt.Fprintf(v.w, "%s %s: %s\n", v.style(ansiDim, "["+stamp+"]"), v.style(ansiBold, label), v.content(m.Content))
}

func (v *View) RenderDateSeparator(day time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clearTyping()
	fmt.Fprintf(v.w, "%s\n", v.style(ansiDim, "--- "+day.Format(dateSepFormat)+" ---"))
}

func (v *View) SetLoading(loading bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if loading == v.loading {
		return
	}
	if loading {
		fmt.Fprint(v.w, v.style(ansiItalic, typingNotice))
		if !v.color {
			fmt.Fprintln(v.w)
		}
	} else {
		v.clearTyping()
	}
	v.loading = loading
}

func (v *View) SetSubmitEnabled(enabled bool) {
	v.mu.Lock()
	v.enabled = enabled
	v.mu.Unlock()
}

// SubmitEnabled reports the last value the controller set.
func (v *View) SubmitEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabled
}

// ClearInput is a no-op: the terminal line editor already consumed the line.
func (v *View) ClearInput() {}

func (v *View) FocusInput() {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprint(v.w, prompt)
}

func (v *View) ScrollToBottom() {}

func (v *View) SetOpen(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	notice := closedNotice
	if open {
		notice = openedNotice
	}
	fmt.Fprintln(v.w, v.style(ansiDim, notice))
}

// clearTyping erases the typing notice when color output can rewrite the line.
func (v *View) clearTyping() {
	if v.loading && v.color {
		fmt.Fprint(v.w, ansiClearLine)
	}
}

// content renders segments as styled spans. Segments are joined the same way
// Message.PlainText joins them.
func (v *View) content(segs []message.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		piece := v.spans(render.SegmentSpans([]message.Segment{seg}))
		if piece == "" {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(piece, " ") {
			b.WriteByte(' ')
		}
		b.WriteString(piece)
	}
	return b.String()
}

func (v *View) spans(spans []render.Span) string {
	var b strings.Builder
	for _, s := range spans {
		text := render.Sanitize(s.Text)
		switch s.Kind {
		case render.Bold:
			b.WriteString(v.style(ansiBold, text))
		case render.Italic:
			b.WriteString(v.style(ansiItalic, text))
		case render.URL:
			href := render.Sanitize(s.Href)
			if text == href || text == "" {
				b.WriteString(v.style(ansiUnderline+ansiCyan, href))
			} else {
				b.WriteString(text + " (" + v.style(ansiUnderline+ansiCyan, href) + ")")
			}
		default:
			b.WriteString(text)
		}
	}
	return b.String()
}

func (v *View) style(code, text string) string {
	if !v.color || text == "" {
		return text
	}
	return code + text + ansiReset
}
