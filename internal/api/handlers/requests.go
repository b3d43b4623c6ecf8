package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/status"
)

// StatusResponse is the public status view of a request
type StatusResponse struct {
	Protocol  string        `json:"protocol"`
	Status    status.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RequestsHandler serves the public request endpoints
type RequestsHandler struct {
	requests repository.Requests
	logger   *slog.Logger
}

// NewRequestsHandler creates a new requests handler
func NewRequestsHandler(requests repository.Requests, logger *slog.Logger) *RequestsHandler {
	return &RequestsHandler{
		requests: requests,
		logger:   logger,
	}
}

// GetStatus returns the current status of a request
// GET /v1/requests/:protocol/status
func (h *RequestsHandler) GetStatus(c *gin.Context) {
	req, err := h.requests.GetByProtocol(c.Request.Context(), c.Param("protocol"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Request not found")
			return
		}
		h.logger.Error("failed to load request", "protocol", c.Param("protocol"), "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", "Failed to load request")
		return
	}

	RespondSuccess(c, StatusResponse{
		Protocol:  req.Protocol,
		Status:    req.Status,
		UpdatedAt: req.UpdatedAt,
	})
}
