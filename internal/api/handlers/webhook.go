package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signdesk/certsync/internal/certsync"
)

const maxWebhookBody = 1 << 20

// EventProcessor applies a status event
type EventProcessor interface {
	Process(ctx context.Context, ev certsync.Event) certsync.Result
}

// WebhookAck is the acknowledgment body the AR expects
type WebhookAck struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// WebhookHandler receives status notifications from the registration authority
type WebhookHandler struct {
	processor EventProcessor
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor EventProcessor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// Receive handles a status webhook
// POST /webhooks/bry
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err, "client_ip", GetClientIP(c))
		c.JSON(http.StatusInternalServerError, WebhookAck{Code: 500, Status: "error", Message: "failed to read payload"})
		return
	}

	ev, err := certsync.ParseEvent(body)
	if err != nil {
		h.logger.Warn("rejected malformed webhook", "error", err, "client_ip", GetClientIP(c))
		c.JSON(http.StatusInternalServerError, WebhookAck{Code: 500, Status: "error", Message: "invalid payload"})
		return
	}
	ev.Source = certsync.SourceWebhook

	// The sender hanging up must not abort a half-applied event.
	h.processor.Process(context.WithoutCancel(c.Request.Context()), ev)

	c.JSON(http.StatusOK, WebhookAck{Code: 200, Status: "success"})
}
