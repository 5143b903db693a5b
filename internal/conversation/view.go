package conversation

import (
	"time"

	"github.com/comigor/chatrelay/internal/message"
)

// View is the rendering layer the controller drives. Implementations must not
// call back into the Controller from these methods.
type View interface {
	// RenderMessage appends one message to the transcript.
	RenderMessage(m message.Message)
	// RenderDateSeparator marks the start of a new calendar day.
	RenderDateSeparator(day time.Time)
	// SetLoading shows or hides the typing indicator.
	SetLoading(loading bool)
	SetSubmitEnabled(enabled bool)
	ClearInput()
	FocusInput()
	ScrollToBottom()
	// SetOpen shows or hides the whole widget.
	SetOpen(open bool)
}

// NopView ignores every call. Embed it to implement only part of View.
type NopView struct{}

func (NopView) RenderMessage(message.Message)  {}
func (NopView) RenderDateSeparator(time.Time) {}
func (NopView) SetLoading(bool)               {}
func (NopView) SetSubmitEnabled(bool)         {}
func (NopView) ClearInput()                   {}
func (NopView) FocusInput()                   {}
func (NopView) ScrollToBottom()               {}
func (NopView) SetOpen(bool)                  {}
