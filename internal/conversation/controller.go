// Package conversation drives one request/response round trip at a time
// between the view, the history store and the transport.
package conversation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/history"
	"github.com/comigor/chatrelay/internal/logger"
	"github.com/comigor/chatrelay/internal/message"
	"github.com/comigor/chatrelay/internal/transport"
)

// State is a controller FSM state.
type State string

const (
	StateIdle    State = "Idle"
	StateSending State = "Sending"
)

// Trigger is a controller FSM trigger.
type Trigger string

const (
	TriggerSubmit    Trigger = "Submit"
	TriggerReplied   Trigger = "Replied"   // 2xx with a body
	TriggerNoContent Trigger = "NoContent" // 204 or a blank 2xx body
	TriggerRejected  Trigger = "Rejected"  // non-2xx status
	TriggerFailed    Trigger = "Failed"    // no response: network error, timeout
)

var (
	// ErrEmptyInput is returned by Submit for blank input. Nothing changes.
	ErrEmptyInput = errors.New("empty input")
	// ErrBusy is returned by Submit while a request is in flight.
	ErrBusy = errors.New("a message is already being sent")
)

// Controller owns the conversation state of one widget instance.
type Controller struct {
	mu sync.Mutex

	transport  transport.Transport
	store      *history.Store
	view       View
	normalizer message.Normalizer
	fsm        *stateless.StateMachine

	window     int
	timeout    time.Duration
	loc        *time.Location
	apology    string
	noResponse string
	now        func() time.Time

	open     bool
	input    string
	lastDate string // calendar day of the last rendered message
}

// New creates a controller. Call Start to load and render the history.
func New(tr transport.Transport, store *history.Store, view View, cfg config.WidgetConfig) *Controller {
	loc, err := cfg.Location()
	if err != nil {
		logger.L.Warn("invalid widget timezone; using local time", "timezone", cfg.Timezone, "error", err)
		loc = time.Local
	}
	c := &Controller{
		transport:  tr,
		store:      store,
		view:       view,
		normalizer: message.Normalizer{Fallback: cfg.FallbackText},
		window:     cfg.HistoryWindow,
		timeout:    cfg.RequestTimeout,
		loc:        loc,
		apology:    cfg.ApologyText,
		noResponse: cfg.NoResponseText,
		now:        time.Now,
	}
	if c.window <= 0 {
		c.window = history.DefaultWindow
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultTimeout
	}
	if strings.TrimSpace(c.apology) == "" {
		c.apology = config.DefaultApologyText
	}
	if strings.TrimSpace(c.noResponse) == "" {
		c.noResponse = config.DefaultNoResponseText
	}
	c.configure()
	return c
}

// configure builds the submission state machine.
//
//	Idle --Submit--> Sending --Replied|NoContent|Rejected|Failed--> Idle
//
// Entering Sending records and shows the user's message and locks the input.
// Leaving Sending records and shows the bot's message, which every exit
// trigger carries as its argument, and unlocks the input.
func (c *Controller) configure() {
	c.fsm = stateless.NewStateMachine(StateIdle)

	c.fsm.Configure(StateIdle).
		Permit(TriggerSubmit, StateSending).
		OnEntryFrom(TriggerReplied, c.unlockInput).
		OnEntryFrom(TriggerNoContent, c.unlockInput).
		OnEntryFrom(TriggerRejected, c.unlockInput).
		OnEntryFrom(TriggerFailed, c.unlockInput)

	c.fsm.Configure(StateSending).
		OnEntry(func(_ context.Context, args ...any) error {
			text, ok := argAt[string](args)
			if !ok {
				return errors.New("submit fired without message text")
			}
			c.record(message.New(message.SenderUser, c.now(), message.Text(text)))
			c.input = ""
			c.view.ClearInput()
			c.view.SetSubmitEnabled(false)
			c.view.SetLoading(true)
			return nil
		}).
		OnExit(func(_ context.Context, args ...any) error {
			if reply, ok := argAt[message.Message](args); ok {
				c.record(reply)
			} else {
				logger.L.Error("FSM: left Sending without a reply message")
			}
			c.view.SetLoading(false)
			return nil
		}).
		Permit(TriggerReplied, StateIdle).
		Permit(TriggerNoContent, StateIdle).
		Permit(TriggerRejected, StateIdle).
		Permit(TriggerFailed, StateIdle)
}

func (c *Controller) unlockInput(context.Context, ...any) error {
	c.gateSubmit(false)
	c.view.FocusInput()
	return nil
}

func argAt[T any](args []any) (T, bool) {
	var zero T
	if len(args) == 0 {
		return zero, false
	}
	v, ok := args[0].(T)
	return v, ok
}

// Start loads the persisted history and renders it from scratch. A corrupt
// history is discarded and logged; the widget starts empty.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Load(); err != nil {
		if errors.Is(err, history.ErrCorrupt) {
			logger.L.Warn("discarded corrupt chat history", "error", err)
		} else {
			logger.L.Error("could not load chat history", "error", err)
		}
	}
	c.lastDate = ""
	c.store.Replay(c.render)
	c.view.ScrollToBottom()
	c.view.SetLoading(false)
	c.gateSubmit(c.State() == StateSending)
	c.view.FocusInput()
}

// Open shows the widget.
func (c *Controller) Open() { c.setOpen(true) }

// Close hides the widget.
func (c *Controller) Close() { c.setOpen(false) }

// Toggle flips the widget visibility.
func (c *Controller) Toggle() {
	c.mu.Lock()
	open := !c.open
	c.mu.Unlock()
	c.setOpen(open)
}

func (c *Controller) setOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
	c.view.SetOpen(open)
}

// IsOpen reports whether the widget is shown.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// InputChanged records the current input field text and re-evaluates whether
// submitting is allowed.
func (c *Controller) InputChanged(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
	c.gateSubmit(c.State() == StateSending)
}

// State returns the current FSM state.
func (c *Controller) State() State {
	return c.fsm.MustState().(State)
}

// History returns a copy of the conversation so far.
func (c *Controller) History() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Messages()
}

// Submit sends input as the user's message and waits for the reply. Blank
// input returns ErrEmptyInput and a submit during another one returns ErrBusy;
// neither changes any state. Otherwise the bot message that was appended is
// returned: the normalized reply, or a fixed text when the call produced none.
// Transport failures are never returned as errors.
func (c *Controller) Submit(ctx context.Context, input string) (message.Message, error) {
	text := strings.TrimSpace(strings.ToValidUTF8(input, "\uFFFD"))
	if text == "" {
		return message.Message{}, ErrEmptyInput
	}

	c.mu.Lock()
	if ok, _ := c.fsm.CanFire(TriggerSubmit); !ok {
		c.mu.Unlock()
		return message.Message{}, ErrBusy
	}
	if err := c.fsm.FireCtx(ctx, TriggerSubmit, text); err != nil {
		c.mu.Unlock()
		return message.Message{}, fmt.Errorf("FSM submit: %w", err)
	}
	req := transport.Request{Message: text, History: c.store.RecentWindow(c.window)}
	c.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	resp, err := c.transport.Send(callCtx, req)
	cancel()
	trigger, reply := c.classify(resp, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fsm.FireCtx(context.WithoutCancel(ctx), trigger, reply); err != nil {
		return reply, fmt.Errorf("FSM %s: %w", trigger, err)
	}
	return reply, nil
}

// classify maps the transport outcome to the exit trigger and bot message.
func (c *Controller) classify(resp transport.Response, err error) (Trigger, message.Message) {
	switch {
	case err != nil:
		logger.L.Error("communication with webhook failed", "error", err)
		return TriggerFailed, c.botText(c.apology)
	case resp.Status == http.StatusNoContent:
		return TriggerNoContent, c.botText(c.noResponse)
	case !resp.OK():
		logger.L.Warn("webhook returned an error status", "status", resp.Status)
		return TriggerRejected, c.botText(c.apology)
	case len(bytes.TrimSpace(resp.Body)) == 0:
		return TriggerNoContent, c.botText(c.noResponse)
	default:
		return TriggerReplied, message.New(message.SenderBot, c.now(), c.normalizer.NormalizeBody(resp.Body)...)
	}
}

func (c *Controller) botText(text string) message.Message {
	return message.New(message.SenderBot, c.now(), message.Text(text))
}

// record appends m to the history, then renders it. A failed write is logged;
// the in-memory history still has the message.
func (c *Controller) record(m message.Message) {
	if err := c.store.Append(m); err != nil {
		logger.L.Error("could not save chat history", "error", err)
	}
	c.render(m)
	c.view.ScrollToBottom()
}

// render shows m, preceded by a date separator when its day differs from the
// previous message's.
func (c *Controller) render(m message.Message) {
	local := m.Timestamp.In(c.loc)
	if day := local.Format(time.DateOnly); day != c.lastDate {
		y, mo, d := local.Date()
		c.view.RenderDateSeparator(time.Date(y, mo, d, 0, 0, 0, 0, c.loc))
		c.lastDate = day
	}
	c.view.RenderMessage(m)
}

// gateSubmit enables submitting only when idle with non-blank input.
func (c *Controller) gateSubmit(sending bool) {
	c.view.SetSubmitEnabled(!sending && strings.TrimSpace(c.input) != "")
}
