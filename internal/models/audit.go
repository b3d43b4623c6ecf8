package models

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Protocol  string    `json:"protocol,omitempty"`
	Source    string    `json:"source"`
	Status    string    `json:"status,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Details   string    `json:"details,omitempty"` // JSON
}

// Audit action constants
const (
	ActionWebhookReceived    = "webhook_received"
	ActionStatusSync         = "status_sync"
	ActionRequestCreate      = "request_create"
	ActionTransitionRejected = "transition_rejected"
)
