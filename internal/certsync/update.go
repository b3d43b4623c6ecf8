package certsync

import (
	"net/url"
	"strings"
	"time"

	"github.com/signdesk/certsync/internal/models"
	"github.com/signdesk/certsync/internal/status"
	"github.com/signdesk/certsync/pkg/taxid"
)

// DefaultRejectionReason is stored when a rejection arrives without any reason field.
const DefaultRejectionReason = "Motivo não informado pela autoridade de registro"

// EmissionURL builds the link an approved applicant follows to issue the certificate
func EmissionURL(baseURL, taxID, protocol string) string {
	q := url.Values{}
	q.Set("cpf", taxid.Digits(taxID))
	q.Set("protocolo", protocol)
	return strings.TrimRight(baseURL, "/") + "/protocolo/emissao?" + q.Encode()
}

// BuildUpdate computes the row write for moving req to status to.
// Lifecycle timestamps and the emission URL are only set when still empty.
// The rejection reason is rewritten on every rejection and cleared on any
// other status so a reason never outlives its round.
func BuildUpdate(req *models.CertificateRequest, ev Event, to status.Status, now time.Time, emissionURL func(taxID, protocol string) string) *models.StatusUpdate {
	now = now.UTC()
	upd := &models.StatusUpdate{
		Status:    to,
		UpdatedAt: now,
	}

	switch to {
	case status.Approved:
		if req.ApprovedAt == nil {
			upd.ApprovedAt = &now
		}
		if req.EmissionURL == "" && emissionURL != nil {
			u := emissionURL(req.TaxID, req.Protocol)
			upd.EmissionURL = &u
		}

	case status.Issued:
		if req.IssuedAt == nil {
			upd.IssuedAt = &now
		}
		issued := true
		upd.CertificateIssued = &issued
		upd.PFXData = nonEmpty(ev.PFXData)
		upd.PFXPassword = nonEmpty(ev.PFXPassword)
		upd.CertificateSerial = nonEmpty(ev.CertificateSerial)
		upd.ValidFrom = ev.ValidFrom
		upd.ValidUntil = ev.ValidUntil

	case status.Rejected, status.ValidationRejected:
		reason := ev.RejectionReason
		if reason == "" {
			// a redelivery of the same rejection keeps the reason already stored
			reason = DefaultRejectionReason
			if req.Status == to && req.RejectionReason != "" {
				reason = req.RejectionReason
			}
		}
		upd.RejectionReason = &reason

	case status.Revoked:
		if req.RevokedAt == nil {
			upd.RevokedAt = &now
		}
	}

	if to != status.Rejected && to != status.ValidationRejected && req.RejectionReason != "" {
		cleared := ""
		upd.RejectionReason = &cleared
	}

	return upd
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
