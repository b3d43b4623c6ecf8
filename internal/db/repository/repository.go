package repository

import (
	"context"
	"errors"
	"time"

	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
)

var (
	// ErrNotFound is returned when no row matches the lookup key
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an update lost an optimistic version race
	ErrConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique key already exists
	ErrDuplicate = errors.New("already exists")
)

// ListFilter narrows request listings
type ListFilter struct {
	Status string
	Limit  int
}

// Requests is the certificate request store
type Requests interface {
	Create(ctx context.Context, req *models.CertificateRequest) error
	GetByProtocol(ctx context.Context, protocol string) (*models.CertificateRequest, error)
	List(ctx context.Context, filter ListFilter) ([]*models.CertificateRequest, error)
	ListInFlight(ctx context.Context, limit int) ([]*models.CertificateRequest, error)
	ApplyUpdate(ctx context.Context, protocol string, version int64, upd *models.StatusUpdate) (*models.CertificateRequest, error)
}

// Audits is the audit trail store
type Audits interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, protocol, action string, limit int) ([]*models.AuditLog, error)
	DeleteOld(ctx context.Context, before time.Time) (int64, error)
}

// Notifications is the email delivery log
type Notifications interface {
	Record(ctx context.Context, n *models.Notification) error
	ListByProtocol(ctx context.Context, protocol string) ([]*models.Notification, error)
}

// terminalStatuses are excluded from in-flight listings
var terminalStatuses = []any{string(status.Issued), string(status.Rejected), string(status.Revoked)}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
