package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signdesk/certsync/internal/models"
)

// AuditStore handles audit log persistence on Postgres
type AuditStore struct {
	DB *pgxpool.Pool
}

// NewAuditStore creates a new audit store
func NewAuditStore(db *pgxpool.Pool) *AuditStore {
	return &AuditStore{DB: db}
}

// Create inserts a new audit log entry
func (s *AuditStore) Create(ctx context.Context, log *models.AuditLog) error {
	err := s.DB.QueryRow(ctx, `
INSERT INTO audit_logs(action, protocol, source, status, success, error_msg, details)
VALUES($1,$2,$3,$4,$5,$6,$7)
RETURNING id, timestamp
`, log.Action, log.Protocol, log.Source, log.Status, log.Success, log.ErrorMsg, log.Details).Scan(&log.ID, &log.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// List retrieves audit logs, newest first, optionally filtered by protocol and action
func (s *AuditStore) List(ctx context.Context, protocol, action string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.DB.Query(ctx, `
SELECT id, timestamp, action, COALESCE(protocol,''), source, COALESCE(status,''), success, COALESCE(error_msg,''), COALESCE(details,'')
FROM audit_logs
WHERE ($1 = '' OR protocol = $1)
  AND ($2 = '' OR action = $2)
ORDER BY timestamp DESC, id DESC
LIMIT $3
`, protocol, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditLog
	for rows.Next() {
		l := &models.AuditLog{}
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Action, &l.Protocol, &l.Source, &l.Status, &l.Success, &l.ErrorMsg, &l.Details); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteOld deletes audit logs older than the given date
func (s *AuditStore) DeleteOld(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM audit_logs WHERE timestamp < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NotificationStore records notification attempts on Postgres
type NotificationStore struct {
	DB *pgxpool.Pool
}

// NewNotificationStore creates a new notification store
func NewNotificationStore(db *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{DB: db}
}

// Record inserts one delivery attempt, assigning an id when missing
func (s *NotificationStore) Record(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	_, err := s.DB.Exec(ctx, `
INSERT INTO notifications(id, protocol, status, recipient, template, provider, provider_id, success, error_msg, sent_at)
VALUES($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, n.ID, n.Protocol, n.Status, n.Recipient, n.Template, n.Provider, n.ProviderID, n.Success, n.ErrorMsg, n.SentAt)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

// ListByProtocol retrieves the delivery attempts for a protocol, oldest first
func (s *NotificationStore) ListByProtocol(ctx context.Context, protocol string) ([]*models.Notification, error) {
	rows, err := s.DB.Query(ctx, `
SELECT id::text, protocol, status, recipient, template, provider, COALESCE(provider_id,''), success, COALESCE(error_msg,''), sent_at
FROM notifications
WHERE protocol=$1
ORDER BY sent_at ASC
`, protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.Protocol, &n.Status, &n.Recipient, &n.Template, &n.Provider, &n.ProviderID, &n.Success, &n.ErrorMsg, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
