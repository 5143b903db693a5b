package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/comigor/chatrelay/internal/config"
	"github.com/comigor/chatrelay/internal/logger"
)

// ErrBodyTooLarge is returned when the response body exceeds the configured
// limit. A cut-off body is never handed on.
var ErrBodyTooLarge = errors.New("webhook response too large")

// RequestIDHeader carries a per-call id for correlating logs on both ends.
const RequestIDHeader = "X-Request-Id"

// Webhook posts requests as JSON to a fixed URL.
type Webhook struct {
	url          string
	maxBodyBytes int64
	client       *http.Client
}

// NewWebhook creates a Webhook transport. Deadlines come from the caller's
// context, so the client itself has no timeout.
func NewWebhook(cfg config.TransportConfig) *Webhook {
	limit := cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	return &Webhook{
		url:          cfg.WebhookURL,
		maxBodyBytes: limit,
		client:       &http.Client{},
	}
}

// Send posts req and returns the status and body, whatever the status.
func (w *Webhook) Send(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, requestID)

	logger.L.Debug("webhook request", "request_id", requestID, "history", len(req.History))
	resp, err := w.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBodyBytes+1))
	if err != nil {
		return Response{}, fmt.Errorf("read webhook response: %w", err)
	}
	if int64(len(data)) > w.maxBodyBytes {
		return Response{}, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, w.maxBodyBytes)
	}
	logger.L.Debug("webhook response", "request_id", requestID, "status", resp.StatusCode, "bytes", len(data))
	return Response{Status: resp.StatusCode, Body: data}, nil
}
