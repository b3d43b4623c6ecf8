package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/signdesk/certsync/internal/bry"
	"github.com/signdesk/certsync/internal/certsync"
	"github.com/signdesk/certsync/internal/db/repository"
	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/policy"
	"github.com/signdesk/certsync/internal/status"
)

// Syncer pulls the AR state of one protocol
type Syncer interface {
	Sync(ctx context.Context, protocol string) (certsync.Result, error)
}

// AdminHandler handles administrative operations
type AdminHandler struct {
	requests      repository.Requests
	audits        repository.Audits
	notifications repository.Notifications
	syncer        Syncer
	validator     *policy.Validator
	logger        *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	requests repository.Requests,
	audits repository.Audits,
	notifications repository.Notifications,
	syncer Syncer,
	validator *policy.Validator,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		requests:      requests,
		audits:        audits,
		notifications: notifications,
		syncer:        syncer,
		validator:     validator,
		logger:        logger,
	}
}

// CreateRequestBody represents a certificate request registration
type CreateRequestBody struct {
	Protocol      string `json:"protocol" binding:"required"`
	CommonName    string `json:"common_name" binding:"required"`
	TaxID         string `json:"tax_id" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Phone         string `json:"phone"`
	BirthDate     string `json:"birth_date"`
	ApplicantType string `json:"applicant_type"`
}

// RequestDetail is a request together with its notification history
type RequestDetail struct {
	*models.CertificateRequest
	Notifications []*models.Notification `json:"notifications"`
}

// SyncResponse summarizes a manual sync
type SyncResponse struct {
	Protocol string        `json:"protocol"`
	Outcome  string        `json:"outcome"`
	Previous status.Status `json:"previous"`
	Status   status.Status `json:"status"`
	Notified bool          `json:"notified"`
}

// CreateRequest registers a request submitted to the AR
// POST /v1/admin/requests
func (h *AdminHandler) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	req := &models.CertificateRequest{
		Protocol:      body.Protocol,
		CommonName:    body.CommonName,
		TaxID:         body.TaxID,
		Email:         body.Email,
		Phone:         body.Phone,
		BirthDate:     body.BirthDate,
		ApplicantType: body.ApplicantType,
		Status:        status.Created,
	}
	if err := h.validator.ValidateNewRequest(req); err != nil {
		var fe *policy.FieldError
		if errors.As(err, &fe) {
			RespondErrorWithDetails(c, http.StatusBadRequest, "validation_failed", fe.Message, gin.H{"field": fe.Field})
			return
		}
		RespondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			RespondError(c, http.StatusConflict, "request_exists", "A request with this protocol already exists")
			return
		}
		h.logger.Error("failed to create request", "protocol", req.Protocol, "error", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to create request")
		return
	}

	h.audit(c, &models.AuditLog{
		Action:   models.ActionRequestCreate,
		Protocol: req.Protocol,
		Status:   string(req.Status),
		Success:  true,
	})

	c.JSON(http.StatusCreated, req)
}

// ListRequests lists requests, newest first
// GET /v1/admin/requests?status=&limit=
func (h *AdminHandler) ListRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	reqs, err := h.requests.List(c.Request.Context(), repository.ListFilter{
		Status: c.Query("status"),
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error("failed to list requests", "error", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list requests")
		return
	}
	if reqs == nil {
		reqs = []*models.CertificateRequest{}
	}

	RespondSuccess(c, gin.H{"requests": reqs})
}

// GetRequest returns one request with its notification history
// GET /v1/admin/requests/:protocol
func (h *AdminHandler) GetRequest(c *gin.Context) {
	ctx := c.Request.Context()
	protocol := c.Param("protocol")

	req, err := h.requests.GetByProtocol(ctx, protocol)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", "Request not found")
			return
		}
		h.logger.Error("failed to load request", "protocol", protocol, "error", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to load request")
		return
	}

	notifications, err := h.notifications.ListByProtocol(ctx, protocol)
	if err != nil {
		h.logger.Warn("failed to load notifications", "protocol", protocol, "error", err)
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	RespondSuccess(c, RequestDetail{CertificateRequest: req, Notifications: notifications})
}

// SyncRequest pulls the current AR state of a request
// POST /v1/admin/requests/:protocol/sync
func (h *AdminHandler) SyncRequest(c *gin.Context) {
	protocol := c.Param("protocol")

	res, err := h.syncer.Sync(c.Request.Context(), protocol)
	switch {
	case errors.Is(err, certsync.ErrSyncUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "sync_unavailable", "Status sync is not configured")
		return
	case errors.Is(err, bry.ErrProtocolNotFound):
		RespondError(c, http.StatusNotFound, "not_found", "Protocol unknown to the registration authority")
		return
	case err != nil:
		h.logger.Warn("sync failed", "protocol", protocol, "error", err)
		RespondError(c, http.StatusBadGateway, "sync_failed", "Failed to fetch status from the registration authority")
		return
	}

	if res.Outcome == certsync.OutcomeNotFound {
		RespondError(c, http.StatusNotFound, "not_found", "Request not found")
		return
	}

	RespondSuccess(c, SyncResponse{
		Protocol: protocol,
		Outcome:  string(res.Outcome),
		Previous: res.Previous,
		Status:   res.Current,
		Notified: res.Notification != nil && res.Notification.Success,
	})
}

// ListAudit lists audit entries
// GET /v1/admin/audit?protocol=&action=&limit=
func (h *AdminHandler) ListAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	logs, err := h.audits.List(c.Request.Context(), c.Query("protocol"), c.Query("action"), limit)
	if err != nil {
		h.logger.Error("failed to list audit logs", "error", err)
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list audit logs")
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	RespondSuccess(c, gin.H{"audit_logs": logs})
}

func (h *AdminHandler) audit(c *gin.Context, entry *models.AuditLog) {
	entry.Source = "admin"
	details, _ := json.Marshal(map[string]string{
		"client_ip":  GetClientIP(c),
		"user_agent": c.GetHeader("User-Agent"),
	})
	entry.Details = string(details)

	if err := h.audits.Create(c.Request.Context(), entry); err != nil {
		h.logger.Warn("failed to write audit log", "action", entry.Action, "error", err)
	}
}
