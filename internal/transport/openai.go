package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/logger"
	"github.com/comigor/chatrelay/internal/message"
)

// ChatCompleter is the subset of openai.Client the transport uses; it is easy
// to mock in tests.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// OpenAI relays the conversation to a chat completion endpoint instead of a
// webhook. The completion text becomes the response body, so replies that
// happen to be JSON go through the same normalizer as webhook bodies.
type OpenAI struct {
	client       ChatCompleter
	model        string
	systemPrompt string
}

// NewOpenAI wraps client with the model and prompt from cfg.
func NewOpenAI(client ChatCompleter, cfg config.LLMConfig) *OpenAI {
	return &OpenAI{client: client, model: cfg.Model, systemPrompt: cfg.SystemPrompt}
}

// Send maps the history window to chat messages and asks for one completion.
// API errors that carry an HTTP status are reported as that status; anything
// else is a transport error.
func (o *OpenAI) Send(ctx context.Context, req Request) (Response, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.messages(req),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			logger.L.Warn("chat completion rejected", "status", apiErr.HTTPStatusCode, "error", apiErr.Message)
			return Response{Status: apiErr.HTTPStatusCode, Body: []byte(apiErr.Message)}, nil
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			logger.L.Warn("chat completion request failed", "status", reqErr.HTTPStatusCode, "error", reqErr.Err)
			return Response{Status: reqErr.HTTPStatusCode}, nil
		}
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{Status: http.StatusNoContent}, nil
	}
	return Response{Status: http.StatusOK, Body: []byte(resp.Choices[0].Message.Content)}, nil
}

func (o *OpenAI) messages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if o.systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: o.systemPrompt})
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Sender == message.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.PlainText()})
	}

	last := len(req.History) - 1
	if last < 0 || req.History[last].Sender != message.SenderUser || req.History[last].PlainText() != req.Message {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
	}
	return out
}
