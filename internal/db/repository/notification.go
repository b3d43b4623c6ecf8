package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signdesk/certsync/internal/models"
)

// NotificationRepository handles the email delivery log
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Record stores one delivery attempt, assigning an id when missing
func (r *NotificationRepository) Record(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	success := 0
	if n.Success {
		success = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, protocol, status, recipient, template, provider, provider_id, success, error_msg, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.ID,
		n.Protocol,
		n.Status,
		n.Recipient,
		n.Template,
		n.Provider,
		n.ProviderID,
		success,
		n.ErrorMsg,
		n.SentAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}

	return nil
}

// ListByProtocol lists delivery attempts for a protocol, oldest first
func (r *NotificationRepository) ListByProtocol(ctx context.Context, protocol string) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, protocol, status, recipient, template, provider, provider_id, success, error_msg, sent_at
		FROM notifications
		WHERE protocol = ?
		ORDER BY sent_at ASC
	`, protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification

	for rows.Next() {
		n := &models.Notification{}
		var providerID, errorMsg sql.NullString
		var success int

		if err := rows.Scan(
			&n.ID,
			&n.Protocol,
			&n.Status,
			&n.Recipient,
			&n.Template,
			&n.Provider,
			&providerID,
			&success,
			&errorMsg,
			&n.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		n.ProviderID = providerID.String
		n.ErrorMsg = errorMsg.String
		n.Success = success == 1

		out = append(out, n)
	}

	return out, rows.Err()
}
