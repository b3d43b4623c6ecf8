package models

import "time"

// Notification records one email delivery attempt
type Notification struct {
	ID         string    `json:"id"` // UUID
	Protocol   string    `json:"protocol"`
	Status     string    `json:"status"`
	Recipient  string    `json:"recipient"`
	Template   string    `json:"template"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"provider_id,omitempty"`
	Success    bool      `json:"success"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}
