package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/comigor/chatrelay/internal/conversation"
	"github.com/comigor/chatrelay/internal/logger"
	"github.com/comigor/chatrelay/internal/message"
)

// Commands recognised on the input line.
const (
	CmdQuit   = "/quit"
	CmdOpen   = "/open"
	CmdClose  = "/close"
	CmdToggle = "/toggle"
)

// Conversation is the part of conversation.Controller the loop drives.
type Conversation interface {
	Start()
	Open()
	Close()
	Toggle()
	IsOpen() bool
	InputChanged(text string)
	Submit(ctx context.Context, input string) (message.Message, error)
}

// Run opens the widget, renders the stored history and then submits each
// input line until in is exhausted, ctx is done or the user quits. Lines typed
// while the widget is closed are dropped.
func Run(ctx context.Context, conv Conversation, in io.Reader) error {
	conv.Open()
	conv.Start()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case CmdQuit:
			return nil
		case CmdOpen:
			conv.Open()
			continue
		case CmdClose:
			conv.Close()
			continue
		case CmdToggle:
			conv.Toggle()
			continue
		}
		if !conv.IsOpen() {
			logger.L.Debug("input ignored while the chat is closed")
			continue
		}

		conv.InputChanged(line)
		if _, err := conv.Submit(ctx, line); err != nil {
			if errors.Is(err, conversation.ErrEmptyInput) {
				continue
			}
			return fmt.Errorf("submit: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
