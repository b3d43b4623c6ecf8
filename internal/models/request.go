package models

import (
	"time"

	"github.com/signdesk/certsync/internal/status"
)

// Applicant types
const (
	ApplicantIndividual   = "individual"
	ApplicantOrganization = "organization"
)

// CertificateRequest represents an applicant's certificate application tracked
// by the certificate authority under Protocol
type CertificateRequest struct {
	ID            int64         `json:"id"`
	Protocol      string        `json:"protocol"`
	CommonName    string        `json:"common_name"`
	TaxID         string        `json:"tax_id"` // CPF or CNPJ, as entered
	Email         string        `json:"email"`
	Phone         string        `json:"phone,omitempty"`
	BirthDate     string        `json:"birth_date,omitempty"`
	ApplicantType string        `json:"applicant_type"`
	Status        status.Status `json:"status"`

	EmissionURL     string `json:"emission_url,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	CertificateIssued bool       `json:"certificate_issued"`
	PFXData           string     `json:"-"` // Base64 bundle, never exposed
	PFXPassword       string     `json:"-"`
	CertificateSerial string     `json:"certificate_serial,omitempty"`
	ValidFrom         *time.Time `json:"valid_from,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Version int64 `json:"version"`
}

// StatusUpdate is the single-row write applied for a status change.
// Nil fields keep the stored value.
type StatusUpdate struct {
	Status status.Status

	ApprovedAt  *time.Time
	EmissionURL *string

	IssuedAt          *time.Time
	CertificateIssued *bool
	PFXData           *string
	PFXPassword       *string
	CertificateSerial *string
	ValidFrom         *time.Time
	ValidUntil        *time.Time

	RejectionReason *string
	RevokedAt       *time.Time

	UpdatedAt time.Time
}
