package status

import "strings"

// Status is the canonical lifecycle state of a certificate request
type Status string

// Canonical statuses
const (
	Created               Status = "created"
	Pending               Status = "pending"
	InValidation          Status = "in_validation"
	Approved              Status = "approved"
	PendingAuthentication Status = "pending_authentication"
	ValidationRejected    Status = "validation_rejected"
	Rejected              Status = "rejected"
	Issued                Status = "issued"
	Revoked               Status = "revoked"
)

// All returns every canonical status in lifecycle order
func All() []Status {
	return []Status{
		Created,
		Pending,
		InValidation,
		Approved,
		PendingAuthentication,
		ValidationRejected,
		Rejected,
		Issued,
		Revoked,
	}
}

// rawTokens maps the certificate authority vocabulary onto canonical statuses.
// "recieved" is a misspelling the AR has been observed to send.
var rawTokens = map[string]Status{
	"created":                Created,
	"received":               Pending,
	"recieved":               Pending,
	"pending":                Pending,
	"in_validation":          InValidation,
	"approved":               Approved,
	"pending_authentication": PendingAuthentication,
	"validation_rejected":    ValidationRejected,
	"rejected":               Rejected,
	"issued":                 Issued,
	"revoked":                Revoked,
}

// Map translates a raw status token into its canonical status.
// Unknown tokens are returned unchanged; check Known before acting on them.
func Map(raw string) Status {
	if s, ok := rawTokens[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return Status(raw)
}

// Known reports whether s is one of the canonical statuses
func (s Status) Known() bool {
	switch s {
	case Created, Pending, InValidation, Approved, PendingAuthentication,
		ValidationRejected, Rejected, Issued, Revoked:
		return true
	}
	return false
}

// Terminal reports whether no further automatic progress is expected
func (s Status) Terminal() bool {
	switch s {
	case Issued, Rejected, Revoked:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
