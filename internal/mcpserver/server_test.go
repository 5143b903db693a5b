package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/conversation"
	"github.com/comigor/chatrelay/internal/history"
	"github.com/comigor/chatrelay/internal/message"
	"github.com/comigor/chatrelay/internal/storage"
	"github.com/comigor/chatrelay/internal/transport"
)

type stubTransport struct{ body string }

func (s stubTransport) Send(context.Context, transport.Request) (transport.Response, error) {
	return transport.Response{Status: http.StatusOK, Body: []byte(s.body)}, nil
}

func newHandlers(body string) (*Handlers, *conversation.Controller) {
	ctrl := conversation.New(stubTransport{body: body}, history.New(storage.NewMemory(), "chatHistory"), conversation.NopView{}, config.WidgetConfig{Timezone: "UTC"})
	ctrl.Start()
	return &Handlers{conv: ctrl}, ctrl
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestSendMessage(t *testing.T) {
	h, ctrl := newHandlers(`{"reply":[{"type":"text","content":"Visita"},{"type":"link","url":"https://x.test","text":"la web"}]}`)

	res, err := h.SendMessage(context.Background(), call(ToolSendMessage, map[string]any{"message": "hola"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "Visita la web (https://x.test)", resultText(t, res))
	require.Len(t, ctrl.History(), 2)
}

func TestSendMessageValidation(t *testing.T) {
	h, ctrl := newHandlers(`{"reply":"ok"}`)

	res, err := h.SendMessage(context.Background(), call(ToolSendMessage, map[string]any{}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, err = h.SendMessage(context.Background(), call(ToolSendMessage, map[string]any{"message": "   "}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Equal(t, "message must not be blank", resultText(t, res))
	require.Empty(t, ctrl.History())
}

type busyConversation struct{}

func (busyConversation) Submit(context.Context, string) (message.Message, error) {
	return message.Message{}, conversation.ErrBusy
}
func (busyConversation) History() []message.Message { return nil }

type brokenConversation struct{ busyConversation }

func (brokenConversation) Submit(context.Context, string) (message.Message, error) {
	return message.Message{}, errors.New("fsm exploded")
}

func TestSendMessageErrors(t *testing.T) {
	h := &Handlers{conv: busyConversation{}}
	res, err := h.SendMessage(context.Background(), call(ToolSendMessage, map[string]any{"message": "hola"}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	h = &Handlers{conv: brokenConversation{}}
	_, err = h.SendMessage(context.Background(), call(ToolSendMessage, map[string]any{"message": "hola"}))
	require.EqualError(t, err, "fsm exploded")
}

func TestGetHistory(t *testing.T) {
	h, _ := newHandlers(`[{"Respuesta":"Hola"}]`)

	res, err := h.GetHistory(context.Background(), call(ToolGetHistory, nil))
	require.NoError(t, err)
	require.Equal(t, "[]", resultText(t, res))

	for i := 0; i < 3; i++ {
		_, err := h.SendMessage(context.Background(), call(ToolSendMessage, map[string]any{"message": fmt.Sprintf("m%d", i)}))
		require.NoError(t, err)
	}

	res, err = h.GetHistory(context.Background(), call(ToolGetHistory, map[string]any{"limit": 2}))
	require.NoError(t, err)
	var got []struct {
		Sender    string            `json:"sender"`
		Timestamp time.Time         `json:"timestamp"`
		Content   []message.Segment `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.Len(t, got, 2)
	require.Equal(t, "user", got[0].Sender)
	require.Equal(t, []message.Segment{message.Text("m2")}, got[0].Content)
	require.Equal(t, "bot", got[1].Sender)
	require.Equal(t, []message.Segment{message.Text("Hola")}, got[1].Content)

	res, err = h.GetHistory(context.Background(), call(ToolGetHistory, map[string]any{}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.Len(t, got, 6)

	res, err = h.GetHistory(context.Background(), call(ToolGetHistory, map[string]any{"limit": -1}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestNewRegistersTools(t *testing.T) {
	h, _ := newHandlers(`{"reply":"ok"}`)
	s := New(h.conv, config.MCPConfig{Name: "chatrelay", Version: "test"})

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"name":"`+ToolSendMessage+`"`)
	require.Contains(t, string(raw), `"name":"`+ToolGetHistory+`"`)
}
