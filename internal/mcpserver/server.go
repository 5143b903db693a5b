// Package mcpserver exposes the conversation as MCP tools so that another
// agent can talk to the webhook through the same controller the terminal uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/conversation"
	"github.com/comigor/chatrelay/internal/logger"
	"github.com/comigor/chatrelay/internal/message"
)

// Tool names.
const (
	ToolSendMessage = "send_message"
	ToolGetHistory  = "get_history"
)

// Conversation is the part of conversation.Controller the tools need.
type Conversation interface {
	Submit(ctx context.Context, input string) (message.Message, error)
	History() []message.Message
}

// Handlers implements the tool handlers.
type Handlers struct {
	conv Conversation
}

// New builds an MCP server with both tools registered against conv.
func New(conv Conversation, cfg config.MCPConfig) *server.MCPServer {
	s := server.NewMCPServer(cfg.Name, cfg.Version, server.WithToolCapabilities(true))
	h := &Handlers{conv: conv}

	s.AddTool(mcp.NewTool(ToolSendMessage,
		mcp.WithDescription("Send a message to the assistant and return its reply as plain text."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The text to send")),
	), h.SendMessage)

	s.AddTool(mcp.NewTool(ToolGetHistory,
		mcp.WithDescription("Return the conversation so far as a JSON array of messages, oldest first."),
		mcp.WithNumber("limit", mcp.Description("Only return the most recent messages; 0 or absent returns all")),
	), h.GetHistory)

	return s
}

// Serve runs the server on stdin/stdout until the input is closed.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// SendMessage submits the message argument and returns the bot reply.
func (h *Handlers) SendMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply, err := h.conv.Submit(ctx, text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return mcp.NewToolResultError("message must not be blank"), nil
	case errors.Is(err, conversation.ErrBusy):
		return mcp.NewToolResultError("another message is still being sent"), nil
	case err != nil:
		logger.L.Error("send_message failed", "error", err)
		return nil, err
	}
	return mcp.NewToolResultText(reply.PlainText()), nil
}

// GetHistory returns the stored messages in their persisted JSON form.
func (h *Handlers) GetHistory(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	msgs := h.conv.History()
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	out, err := json.Marshal(msgs)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}
