// Package transport delivers one user turn to the remote endpoint and hands
// back the raw status and body for the conversation controller to classify.
package transport

import (
	"context"
	"fmt"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/message"
)

// Request is the outbound payload: the user's text and the recent history
// window, which already ends with the user's message.
type Request struct {
	Message string            `json:"message"`
	History []message.Message `json:"history"`
}

// Response is what came back. Body is undecoded.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Transport performs a single request/response exchange. An error means no
// response was obtained at all (network failure, timeout, cancellation).
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// New builds the transport selected by cfg.
func New(cfg config.Config) (Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportWebhook:
		return NewWebhook(cfg.Transport), nil
	case config.TransportOpenAI:
		return NewOpenAI(NewOpenAIClient(cfg.LLM), cfg.LLM), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Transport.Kind)
	}
}
